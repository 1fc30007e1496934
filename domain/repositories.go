package domain

import "context"

// UsersCollection holds one profile document per identity.
const UsersCollection = "users"

//go:generate mockgen -source=repositories.go -destination=mocks/repositories_mock.go -package=mocks

// ProfileStore is a document store keyed by user id.
type ProfileStore interface {
	// Upsert writes fields into collection/id. With merge set, fields not present
	// in the write are preserved; otherwise the document is replaced.
	Upsert(ctx context.Context, collection, id string, fields map[string]any, merge bool) error
	// Get returns the stored document or ErrProfileNotFound.
	Get(ctx context.Context, collection, id string) (map[string]any, error)
}

// SessionCache is on-device key/value persistence.
type SessionCache interface {
	Set(ctx context.Context, key string, value []byte) error
	// Get returns ErrCacheMiss when key is not present.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// AccountRepository stores email/password accounts.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByID(ctx context.Context, id string) (*Account, error)
}
