// Package bolt keeps the session mirror in a bbolt file on the device.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"go.pilab.hu/recovery/domain"
)

// DefaultBucketName is used when no bucket is configured.
const DefaultBucketName = "session_cache"

// SessionCache implements domain.SessionCache on a bbolt database file.
type SessionCache struct {
	db     *bbolt.DB
	bucket []byte
}

// Open opens (creating when needed) the database at dbPath.
func Open(dbPath, bucket string) (*SessionCache, error) {
	if bucket == "" {
		bucket = DefaultBucketName
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	log.Debug().Str("path", dbPath).Msg("Opening session cache")
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 5 * time.Second}) // Read/Write for owner only
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}

	return &SessionCache{db: db, bucket: []byte(bucket)}, nil
}

// Set stores value under key.
func (s *SessionCache) Set(_ context.Context, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(s.bucket).Put([]byte(key), value); err != nil {
			return fmt.Errorf("failed to put key %s: %w", key, err)
		}
		return nil
	})
}

// Get returns a copy of the value or domain.ErrCacheMiss.
func (s *SessionCache) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return domain.ErrCacheMiss
		}
		// v is only valid during the transaction.
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Delete removes key. A missing key is not an error.
func (s *SessionCache) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(s.bucket).Delete([]byte(key)); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}
		return nil
	})
}

// Close releases the database file lock.
func (s *SessionCache) Close() error {
	return s.db.Close()
}

var _ domain.SessionCache = (*SessionCache)(nil)
