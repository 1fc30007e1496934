// Package memstore provides in-process ProfileStore and AccountRepository
// implementations for offline runs and tests.
package memstore

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"go.pilab.hu/recovery/domain"
)

// ProfileStore is a map-backed domain.ProfileStore.
type ProfileStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]any // collection/id -> document
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{docs: make(map[string]map[string]any)}
}

func docKey(collection, id string) string {
	return collection + "/" + id
}

// Upsert implements domain.ProfileStore.
func (s *ProfileStore) Upsert(_ context.Context, collection, id string, fields map[string]any, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := docKey(collection, id)
	existing, ok := s.docs[key]
	if !merge || !ok {
		s.docs[key] = maps.Clone(fields)
		return nil
	}
	maps.Copy(existing, fields)
	return nil
}

// Get implements domain.ProfileStore.
func (s *ProfileStore) Get(_ context.Context, collection, id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[docKey(collection, id)]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return maps.Clone(doc), nil
}

var _ domain.ProfileStore = (*ProfileStore)(nil)

// AccountRepository is a map-backed domain.AccountRepository.
type AccountRepository struct {
	mu       sync.RWMutex
	byID     map[string]*domain.Account
	byEmails map[string]string // lowercased email -> id
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:     make(map[string]*domain.Account),
		byEmails: make(map[string]string),
	}
}

func (r *AccountRepository) CreateAccount(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(account.Email)
	if _, taken := r.byEmails[email]; taken {
		return domain.ErrEmailAlreadyInUse
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.UpdatedAt = account.CreatedAt

	stored := *account
	r.byID[account.ID] = &stored
	r.byEmails[email] = account.ID
	return nil
}

func (r *AccountRepository) GetAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmails[strings.ToLower(email)]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	acc := *r.byID[id]
	return &acc, nil
}

func (r *AccountRepository) GetAccountByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	out := *acc
	return &out, nil
}

var _ domain.AccountRepository = (*AccountRepository)(nil)
