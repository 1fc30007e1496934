package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"go.pilab.hu/recovery/session"
)

var signUpCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an email account and its profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req session.SignUpRequest
		req.Email, _ = cmd.Flags().GetString("email")
		req.Password, _ = cmd.Flags().GetString("password")
		req.FirstName, _ = cmd.Flags().GetString("first-name")
		req.LastName, _ = cmd.Flags().GetString("last-name")
		req.Birthdate, _ = cmd.Flags().GetString("birthdate")
		if req.Password == "" {
			pw, err := readPassword(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			req.Password = pw
		}

		return withApp(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), func(ctx context.Context, a *app) error {
			rec, err := a.manager.SignUpWithEmail(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created account %s for %s\n", rec.UserID, rec.Email)
			return nil
		})
	},
}

func init() {
	signUpCmd.Flags().String("email", "", "account email")
	signUpCmd.Flags().String("password", "", "account password (prompted when omitted)")
	signUpCmd.Flags().String("first-name", "", "given name")
	signUpCmd.Flags().String("last-name", "", "family name")
	signUpCmd.Flags().String("birthdate", "", "birth date as YYYY-MM-DD")
	for _, name := range []string{"email", "first-name", "last-name", "birthdate"} {
		_ = signUpCmd.MarkFlagRequired(name)
	}
}

// readPassword reads a password from the terminal without echo.
func readPassword(out io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(out, "Enter password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}
