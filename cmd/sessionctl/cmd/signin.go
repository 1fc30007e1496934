package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"go.pilab.hu/recovery/domain"
)

var signInCmd = &cobra.Command{
	Use:       "signin google|apple",
	Short:     "Sign in with a social provider",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(domain.ProviderGoogle), string(domain.ProviderApple)},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := domain.ProviderKind(strings.ToLower(args[0]))
		if !kind.Valid() {
			return fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, args[0])
		}
		firstName, _ := cmd.Flags().GetString("first-name")
		lastName, _ := cmd.Flags().GetString("last-name")

		return withApp(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), func(ctx context.Context, a *app) error {
			a.prompter.FirstName = firstName
			a.prompter.LastName = lastName

			// A dismissed prompt returns nil and leaves the session as it was.
			if err := a.manager.SignInWithProvider(ctx, kind); err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), a.manager.Current())
		})
	},
}

func init() {
	signInCmd.Flags().String("first-name", "", "given name to send with an Apple credential")
	signInCmd.Flags().String("last-name", "", "family name to send with an Apple credential")
}
