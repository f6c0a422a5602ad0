// Package state persists OAuth2 tokens in a bbolt database so they
// survive restarts. Token values arrive already encrypted; nothing in
// this package sees a raw secret.
package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/credbroker/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	metaBucket   = []byte("meta")
	tokensBucket = []byte("oauth2_tokens")

	schemaKey     = []byte("schema")
	schemaVersion = []byte("1")
)

// State wraps a bbolt database of OAuth2 tokens keyed by token key.
type State struct {
	db *bolt.DB
}

// Load opens the state database at ~/.credbroker/tokens.db, creating it
// if it does not exist.
func Load() (*State, error) {
	path, err := dbPath()
	if err != nil {
		return nil, err
	}

	return LoadAt(path)
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}

		if v := meta.Get(schemaKey); v != nil && string(v) != string(schemaVersion) {
			return fmt.Errorf("unsupported schema version %q", v)
		}

		if err := meta.Put(schemaKey, schemaVersion); err != nil {
			return err
		}

		_, err = tx.CreateBucketIfNotExists(tokensBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// GetToken returns the token stored under key, or nil if not found.
func (s *State) GetToken(key string) (*models.Token, error) {
	var t *models.Token

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(tokensBucket).Get([]byte(key))
		if v == nil {
			return nil
		}

		t = &models.Token{}

		return json.Unmarshal(v, t)
	})

	return t, err
}

// SaveToken stores a token under key, replacing any previous value.
func (s *State) SaveToken(key string, t *models.Token) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokensBucket).Put([]byte(key), data)
	})
}

// DeleteToken removes and returns the token stored under key. Deleting a
// missing key returns nil, nil.
func (s *State) DeleteToken(key string) (*models.Token, error) {
	var t *models.Token

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tokensBucket)

		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}

		t = &models.Token{}
		if err := json.Unmarshal(v, t); err != nil {
			return err
		}

		return b.Delete([]byte(key))
	})

	return t, err
}

// AllTokens returns every stored token.
func (s *State) AllTokens() ([]*models.Token, error) {
	var tokens []*models.Token

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(tokensBucket).ForEach(func(k, v []byte) error {
			t := &models.Token{}
			if err := json.Unmarshal(v, t); err != nil {
				return fmt.Errorf("decoding token %q: %w", k, err)
			}

			tokens = append(tokens, t)

			return nil
		})
	})

	return tokens, err
}

// TokenCount returns the number of stored tokens.
func (s *State) TokenCount() int {
	count := 0
	_ = s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(tokensBucket).Stats().KeyN
		return nil
	})

	return count
}

func dbPath() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(dir, ".credbroker", "tokens.db"), nil
}
