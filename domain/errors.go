package domain

import "errors"

var (
	ErrCredentialCancelled = errors.New("interactive sign-in cancelled by user")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrCacheMiss           = errors.New("cache entry not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrEmailAlreadyInUse   = errors.New("email address already in use")
	ErrWeakPassword        = errors.New("password does not meet the minimum policy")
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
)
