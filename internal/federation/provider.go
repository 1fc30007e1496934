// Package federation exchanges social sign-in credentials for verified user info.
package federation

import (
	"context"

	"golang.org/x/oauth2"

	"go.pilab.hu/recovery/domain"
)

// ExternalUserInfo holds standardized user information retrieved from a social provider.
type ExternalUserInfo struct {
	ProviderUserID string // Unique ID of the user within the provider (e.g., Google's 'sub')
	Email          string
	FirstName      string
	LastName       string
	PictureURL     string
	RawData        map[string]any // Raw user data from the provider
}

// DisplayName joins the name parts.
func (u *ExternalUserInfo) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// ProviderConfig is the static client configuration of a social provider.
// AuthURL and TokenURL override the provider's well-known endpoints.
type ProviderConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
}

// Exchanger turns an interactive credential into user info for one provider kind.
type Exchanger interface {
	Kind() domain.ProviderKind
	// AuthCodeURL is the URL the interactive prompt opens.
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, cred *domain.Credential) (*ExternalUserInfo, error)
}

// ensureScopes appends the required scopes that are missing, without duplicates.
func ensureScopes(scopes []string, required ...string) []string {
	seen := make(map[string]bool, len(scopes))
	out := make([]string, 0, len(scopes)+len(required))
	for _, s := range append(scopes, required...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func endpointOr(cfg ProviderConfig, def oauth2.Endpoint) oauth2.Endpoint {
	if cfg.AuthURL != "" {
		def.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		def.TokenURL = cfg.TokenURL
	}
	return def
}
