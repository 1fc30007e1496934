package federation

import "errors"

var (
	ErrExchangeCodeFailed    = errors.New("failed to exchange authorization code for token")
	ErrFetchUserInfoFailed   = errors.New("failed to fetch user info from provider")
	ErrProviderMisconfigured = errors.New("provider is misconfigured")
	ErrMissingCredential     = errors.New("credential carries neither an authorization code nor an ID token")
)
