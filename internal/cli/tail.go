package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"fidoochat/internal/feed"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the message feed",
	Long:  `Print the whole feed every time it changes. No session is needed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sub := a.Feed.Subscribe()
		defer sub.Cancel()

		return follow(ctx, sub, cmd.OutOrStdout(), func() string { return "" })
	},
}

// follow prints each snapshot until ctx is done or the subscription ends.
func follow(ctx context.Context, sub *feed.Subscription, out io.Writer, me func() string) error {
	updates := sub.Updates()
	errs := sub.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-updates:
			if !ok {
				return nil
			}
			printFeed(out, f, me())
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			fmt.Fprintln(out, errorStyle.Render("feed: "+err.Error()))
		}
	}
}
