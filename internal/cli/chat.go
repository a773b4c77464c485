package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fidoochat/internal/domain"
)

const quitCommand = "/quit"

var chatEmail string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Sign in, follow the feed and send messages",
	Long: `Print the feed on every change and send each typed line as a message.
The stored session from "login" is used when there is one; otherwise --email
is required and the password is prompted. Type /quit to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		in := cmd.InOrStdin()
		lines := bufio.NewReader(in)
		out := cmd.OutOrStdout()

		if !a.Session.Current().Authenticated() {
			if chatEmail == "" {
				return errors.New("no stored session: --email is required")
			}
			password, err := readPassword(in, lines, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if _, err := a.Login.Login(ctx, chatEmail, password); err != nil {
				return err
			}
		}
		fmt.Fprintln(out, okStyle.Render("Logueado con: "+a.Session.Current().Email()))

		sub := a.Feed.Subscribe()
		defer sub.Cancel()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return follow(gctx, sub, out, func() string { return a.Session.Current().Email() })
		})

		// Stdin reads cannot be interrupted, so the loop runs outside the
		// group and cancels it on the way out.
		err = chatLoop(ctx, lines, out, func(ctx context.Context, text string) error {
			return a.Composer.Send(ctx, text, a.Session.Current().Token)
		})
		cancel()
		return errors.Join(err, g.Wait())
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatEmail, "email", "e", "", "Account email, when no session is stored")
}

// chatLoop sends every input line until /quit, EOF or ctx is done. Send
// errors are printed and the loop goes on; only read errors end it.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, send func(context.Context, string) error) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == quitCommand {
			return nil
		}

		if err := send(ctx, line); err != nil {
			fmt.Fprintln(out, errorStyle.Render(sendNotice(err)))
		}
	}
	return scanner.Err()
}

func sendNotice(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return "Por favor, inicia sesión para enviar mensajes"
	case errors.Is(err, domain.ErrMissingToken):
		return "No hay token de autorización"
	case errors.Is(err, domain.ErrSendInFlight):
		return "Ya se está enviando un mensaje"
	default:
		return "Error enviando mensaje: " + err.Error()
	}
}
