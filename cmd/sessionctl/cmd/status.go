package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"go.pilab.hu/recovery/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the restored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), func(ctx context.Context, a *app) error {
			return printSession(cmd.OutOrStdout(), a.manager.Current())
		})
	},
}

type sessionView struct {
	Identity    string         `yaml:"identity"`
	Email       string         `yaml:"email,omitempty"`
	DisplayName string         `yaml:"displayName,omitempty"`
	PhotoURL    string         `yaml:"photoURL,omitempty"`
	LastLoginAt string         `yaml:"lastLoginAt,omitempty"`
	Profile     map[string]any `yaml:"profile,omitempty"`
}

func printSession(w io.Writer, s *domain.Session) error {
	if !s.Present() {
		_, err := fmt.Fprintln(w, "Not signed in.")
		return err
	}
	view := sessionView{
		Identity:    s.Identity,
		Email:       s.Email,
		DisplayName: s.DisplayName,
		PhotoURL:    s.PhotoURL,
		Profile:     s.Profile,
	}
	if s.LastLoginAt != nil {
		view.LastLoginAt = s.LastLoginAt.Format("2006-01-02T15:04:05Z07:00")
	}
	out, err := yaml.Marshal(view)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
