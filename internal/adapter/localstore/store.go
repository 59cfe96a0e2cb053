// Package localstore is the durable string/string cache kept on the client machine
package localstore

import (
	"context"
	"fmt"
	"time"

	"github.com/simaogato/dipledger-backend/internal/common"
	"github.com/simaogato/dipledger-backend/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("kv")

// Store implements domain.KeyValueStore on a single bbolt file
type Store struct {
	db     *bolt.DB
	logger *common.Logger
}

// Open opens or creates the store at path
func Open(path string, logger *common.Logger) (*Store, error) {
	if logger == nil {
		logger = common.NewSilentLogger()
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise local store: %w", err)
	}

	logger.Debug().Str("path", path).Msg("local store opened")
	return &Store{db: db, logger: logger}, nil
}

// Close releases the file lock
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns domain.ErrNotFound when key has never been set
func (s *Store) Get(_ context.Context, key string) (string, error) {
	var value string
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v != nil {
			found = true
			value = string(v)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to get key '%s': %w", key, err)
	}
	if !found {
		return "", fmt.Errorf("key '%s': %w", key, domain.ErrNotFound)
	}
	return value, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to set key '%s': %w", key, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete key '%s': %w", key, err)
	}
	return nil
}

var _ domain.KeyValueStore = (*Store)(nil)
