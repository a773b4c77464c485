package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and verify the token with the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		password, err := readPassword(in, bufio.NewReader(in), cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		a, err := setupSession(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.Login.Login(cmd.Context(), loginEmail, password)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Logueado con: "+user.Email))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	_ = loginCmd.MarkFlagRequired("email")
}

// readPassword prompts without echo when in is a terminal. Otherwise it
// reads one line from lines, which must wrap in.
func readPassword(in io.Reader, lines *bufio.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Contraseña: ")
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := lines.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
