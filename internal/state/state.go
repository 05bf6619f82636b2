// Package state persists the note-file summary cache in a bbolt database
// so that unchanged files are not re-parsed on every start.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.misli/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket     = []byte("app")
	schemaKey     = []byte("schema")
	schemaVersion = []byte("1")
)

// libraryBucket names the summary bucket of one library. Libraries are
// keyed by a digest of their absolute root so paths of any length work.
func libraryBucket(root string) []byte {
	h := sha256.Sum256([]byte(root))
	return []byte("library:" + hex.EncodeToString(h[:8]) + ":summaries")
}

// CachedSummary is the stored form of a parsed note file. Size and MTime
// identify the file revision the counts were computed from.
type CachedSummary struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	MTime int64  `json:"mtime"`
	Hash  string `json:"hash"`
	Notes int    `json:"notes"`
	Links int    `json:"links"`
	Error string `json:"error,omitempty"`
}

// Matches reports whether the cached entry describes a file of the given
// size and modification time (unix nanoseconds).
func (c *CachedSummary) Matches(size, mtime int64) bool {
	return c != nil && c.Size == size && c.MTime == mtime
}

// State wraps a bbolt database for all persistent application state.
type State struct {
	db *bolt.DB
}

// Load opens the state database at ~/.misli/state.db.
func Load() (*State, error) {
	path, err := DefaultPath()
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
		b, err := tx.CreateBucketIfNotExists(appBucket)
		if err != nil {
			return err
		}
		return b.Put(schemaKey, schemaVersion)
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

// Summary returns the cached summary for a note file, or nil if none.
func (s *State) Summary(root, name string) (*CachedSummary, error) {
	var cs *CachedSummary

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(libraryBucket(root))
		if b == nil {
			return nil
		}

		v := b.Get([]byte(name))
		if v == nil {
			return nil
		}

		cs = &CachedSummary{}

		return json.Unmarshal(v, cs)
	})

	return cs, err
}

// PutSummary stores the summary for a note file.
func (s *State) PutSummary(root string, cs CachedSummary) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(libraryBucket(root))
		if err != nil {
			return err
		}

		data, err := json.Marshal(cs)
		if err != nil {
			return err
		}

		return b.Put([]byte(cs.Name), data)
	})
}

// DeleteSummary removes the summary for a note file.
func (s *State) DeleteSummary(root, name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(libraryBucket(root))
		if b == nil {
			return nil
		}

		return b.Delete([]byte(name))
	})
}

// Summaries returns every cached summary of a library keyed by name.
func (s *State) Summaries(root string) (map[string]CachedSummary, error) {
	result := make(map[string]CachedSummary)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(libraryBucket(root))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var cs CachedSummary
			if err := json.Unmarshal(v, &cs); err != nil {
				return err
			}

			result[string(k)] = cs

			return nil
		})
	})

	return result, err
}

// Prune deletes cached summaries whose names are not in keep.
func (s *State) Prune(root string, keep map[string]bool) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(libraryBucket(root))
		if b == nil {
			return nil
		}

		var stale [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			if !keep[string(k)] {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}

		return nil
	})

	return removed, err
}

// DefaultPath returns ~/.misli/state.db.
func DefaultPath() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(dir, ".misli", "state.db"), nil
}
