package session

import (
	"errors"
	"fmt"

	"go.pilab.hu/recovery/domain"
)

// ErrManagerClosed is returned by Start after Close.
var ErrManagerClosed = errors.New("session manager is closed")

// SignInError is returned when a social sign-in fails after the user completed the prompt.
type SignInError struct {
	Provider domain.ProviderKind
	Err      error
}

func (e *SignInError) Error() string {
	return fmt.Sprintf("sign in with %s: %v", e.Provider, e.Err)
}

func (e *SignInError) Unwrap() error { return e.Err }

// SignUpError wraps the identity provider's or profile store's failure for an email sign-up.
type SignUpError struct {
	Email string
	Err   error
}

func (e *SignUpError) Error() string {
	return fmt.Sprintf("sign up %s: %v", e.Email, e.Err)
}

func (e *SignUpError) Unwrap() error { return e.Err }

// SignOutError means the session was left exactly as it was before the call.
type SignOutError struct {
	Identity string
	Err      error
}

func (e *SignOutError) Error() string {
	return fmt.Sprintf("sign out %s: %v", e.Identity, e.Err)
}

func (e *SignOutError) Unwrap() error { return e.Err }

// ProfileWriteError is the profile store's failure to persist a profile document.
// It is wrapped by SignInError or SignUpError.
type ProfileWriteError struct {
	UserID string
	Merge  bool
	Err    error
}

func (e *ProfileWriteError) Error() string {
	return fmt.Sprintf("write profile %s (merge=%t): %v", e.UserID, e.Merge, e.Err)
}

func (e *ProfileWriteError) Unwrap() error { return e.Err }

// RestorationFetchError is logged when the profile of a restored identity cannot be read.
// The session is still published, with a nil Profile.
type RestorationFetchError struct {
	UserID string
	Err    error
}

func (e *RestorationFetchError) Error() string {
	return fmt.Sprintf("fetch profile for restored identity %s: %v", e.UserID, e.Err)
}

func (e *RestorationFetchError) Unwrap() error { return e.Err }
