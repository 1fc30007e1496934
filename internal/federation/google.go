package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	googleOAuth2 "golang.org/x/oauth2/google"

	"go.pilab.hu/recovery/domain"
)

var GoogleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleProvider implements Exchanger for Google sign-in.
type GoogleProvider struct {
	config *oauth2.Config
}

// NewGoogleProvider creates a GoogleProvider, adding the openid, profile and
// email scopes when missing.
func NewGoogleProvider(cfg ProviderConfig) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrProviderMisconfigured
	}
	scopes := ensureScopes(cfg.Scopes,
		"openid",
		"https://www.googleapis.com/auth/userinfo.profile",
		"https://www.googleapis.com/auth/userinfo.email",
	)
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpointOr(cfg, googleOAuth2.Endpoint),
		},
	}, nil
}

func (g *GoogleProvider) Kind() domain.ProviderKind { return domain.ProviderGoogle }

// OAuth2Config exposes the client configuration.
func (g *GoogleProvider) OAuth2Config() *oauth2.Config { return g.config }

func (g *GoogleProvider) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	return g.config.AuthCodeURL(state, opts...)
}

// Exchange redeems the authorization code and reads the userinfo endpoint.
func (g *GoogleProvider) Exchange(ctx context.Context, cred *domain.Credential) (*ExternalUserInfo, error) {
	if cred == nil || cred.Code == "" {
		return nil, ErrMissingCredential
	}
	token, err := g.config.Exchange(ctx, cred.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchangeCodeFailed, err)
	}
	info, err := g.FetchUserInfo(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchUserInfoFailed, err)
	}
	return info, nil
}

// FetchUserInfo fetches user information from Google with an access token.
func (g *GoogleProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error) {
	client := g.config.Client(ctx, token)
	resp, err := client.Get(GoogleUserInfoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info from Google: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Google user info response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch user info from Google: status %d, body: %s", resp.StatusCode, string(rawBody))
	}

	var rawUserInfo struct {
		Sub        string `json:"sub"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Picture    string `json:"picture"`
		Email      string `json:"email"`
	}
	if err := json.Unmarshal(rawBody, &rawUserInfo); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Google user info: %w", err)
	}
	if rawUserInfo.Sub == "" {
		return nil, fmt.Errorf("google user info has no subject")
	}

	var rawDataMap map[string]any
	_ = json.Unmarshal(rawBody, &rawDataMap)

	return &ExternalUserInfo{
		ProviderUserID: rawUserInfo.Sub,
		Email:          rawUserInfo.Email,
		FirstName:      rawUserInfo.GivenName,
		LastName:       rawUserInfo.FamilyName,
		PictureURL:     rawUserInfo.Picture,
		RawData:        rawDataMap,
	}, nil
}

var _ Exchanger = (*GoogleProvider)(nil)
