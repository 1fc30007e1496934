package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var signOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out and clear the cached session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), func(ctx context.Context, a *app) error {
			if err := a.manager.SignOut(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		})
	},
}
