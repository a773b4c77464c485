package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupSession(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		wasSignedIn := a.Session.Current().Authenticated()

		// Also drops a stored session whose token no longer refreshes.
		if err := a.Login.Logout(cmd.Context()); err != nil {
			return err
		}

		if !wasSignedIn {
			fmt.Fprintln(cmd.OutOrStdout(), emptyStyle.Render("No hay sesión iniciada"))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Sesión cerrada"))
		return nil
	},
}
