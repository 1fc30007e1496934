package domain

import (
	"context"
	"time"
)

// ProviderKind names how an identity signed in. Only social kinds are Valid.
type ProviderKind string

const (
	// ProviderGoogle and ProviderApple are the supported social providers.
	ProviderGoogle ProviderKind = "google"
	ProviderApple  ProviderKind = "apple"

	// ProviderPassword marks accounts created with email and password.
	ProviderPassword ProviderKind = "password"
)

// Valid reports whether k is a supported social provider.
func (k ProviderKind) Valid() bool {
	return k == ProviderGoogle || k == ProviderApple
}

// Credential is what the interactive prompt hands back: an authorization code
// and, for providers that return one up front, an ID token.
type Credential struct {
	Kind    ProviderKind
	Code    string
	IDToken string
	// Name parts Apple posts only on the first authorization.
	FirstName string
	LastName  string
}

// ProviderSession is the identity provider's own signed-in state.
type ProviderSession struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Provider    string    `json:"provider"`
	SignedInAt  time.Time `json:"signed_in_at"`
	Created     bool      `json:"-"` // Account did not exist before this sign-in
}

// Record converts the provider session to a public user record.
func (p *ProviderSession) Record(createdAt time.Time) *UserRecord {
	return &UserRecord{
		UserID:      p.UserID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		PhotoURL:    p.PhotoURL,
		Provider:    p.Provider,
		CreatedAt:   createdAt,
	}
}

// AuthStateListener receives the ambient authentication state. A nil session
// means the provider has no active identity.
type AuthStateListener func(session *ProviderSession)

// IdentityProvider performs credential verification and owns the provider-side session.
//
// RequestInteractiveCredential returns ErrCredentialCancelled when the user dismisses the prompt.
type IdentityProvider interface {
	RequestInteractiveCredential(ctx context.Context, kind ProviderKind) (*Credential, error)
	ExchangeCredential(ctx context.Context, cred *Credential) (*ProviderSession, error)
	CreateAccount(ctx context.Context, email, password string) (*ProviderSession, error)
	RevokeSession(ctx context.Context) error
	// Subscribe registers listener and returns a function that removes it.
	// The listener is called with the current state shortly after registration.
	Subscribe(listener AuthStateListener) (unsubscribe func())
}
