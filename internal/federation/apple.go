package federation

import (
	"context"
	"fmt"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"go.pilab.hu/recovery/domain"
)

const (
	AppleAuthURL  = "https://appleid.apple.com/auth/authorize"
	AppleTokenURL = "https://appleid.apple.com/auth/token"
)

// AppleProvider implements Exchanger for Sign in with Apple.
// Apple has no userinfo endpoint: identity comes from the ID token, and the
// name only arrives with the first authorization, on the credential itself.
type AppleProvider struct {
	config *oauth2.Config
}

// NewAppleProvider creates an AppleProvider. ClientSecret is the pre-generated
// client secret JWT.
func NewAppleProvider(cfg ProviderConfig) (*AppleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrProviderMisconfigured
	}
	return &AppleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       ensureScopes(cfg.Scopes, "name", "email"),
			Endpoint: endpointOr(cfg, oauth2.Endpoint{
				AuthURL:   AppleAuthURL,
				TokenURL:  AppleTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			}),
		},
	}, nil
}

func (a *AppleProvider) Kind() domain.ProviderKind { return domain.ProviderApple }

// OAuth2Config exposes the client configuration.
func (a *AppleProvider) OAuth2Config() *oauth2.Config { return a.config }

// AuthCodeURL adds response_mode=form_post, which Apple requires when name or email is requested.
func (a *AppleProvider) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	raw := a.config.AuthCodeURL(state, opts...)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Get("response_mode") == "" {
		q.Set("response_mode", "form_post")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Exchange redeems the code (when present) and reads the ID token claims.
func (a *AppleProvider) Exchange(ctx context.Context, cred *domain.Credential) (*ExternalUserInfo, error) {
	if cred == nil || (cred.Code == "" && cred.IDToken == "") {
		return nil, ErrMissingCredential
	}

	idToken := cred.IDToken
	if cred.Code != "" {
		token, err := a.config.Exchange(ctx, cred.Code)
		if err != nil {
			return nil, fmt.Errorf("%w: apple: %w", ErrExchangeCodeFailed, err)
		}
		if raw, ok := token.Extra("id_token").(string); ok && raw != "" {
			idToken = raw
		}
	}
	if idToken == "" {
		return nil, fmt.Errorf("%w: apple: ID token not found in token response", ErrFetchUserInfoFailed)
	}

	info, err := parseAppleIDToken(idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchUserInfoFailed, err)
	}
	info.FirstName = cred.FirstName
	info.LastName = cred.LastName
	return info, nil
}

// parseAppleIDToken reads the claims of an ID token received directly from
// Apple's token endpoint over TLS; the signature is not re-verified here.
func parseAppleIDToken(raw string) (*ExternalUserInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("apple: invalid ID token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("apple: ID token has no subject")
	}
	email, _ := claims["email"].(string)

	return &ExternalUserInfo{
		ProviderUserID: sub,
		Email:          email,
		RawData:        map[string]any(claims),
	}, nil
}

var _ Exchanger = (*AppleProvider)(nil)
