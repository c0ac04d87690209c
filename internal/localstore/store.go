// Package localstore persists small JSON blobs (the last known session and
// profile) on the local device so a restart can restore the session before
// any network call.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Keys used by the session store.
const (
	KeySession  = "session"
	KeyUserData = "userData"
)

// Storage driver names.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// ErrStoreCorrupted indicates the backing file exists but cannot be decoded.
var ErrStoreCorrupted = errors.New("local state corrupted")

// ErrEmptyKey is returned for a blank key.
var ErrEmptyKey = errors.New("local state key cannot be empty")

// Store is a key-value store of JSON values.
type Store interface {
	// Load decodes the value stored under key into v. It reports false when the key is absent.
	Load(ctx context.Context, key string, v any) (bool, error)
	// Save encodes v and stores it under key, replacing any previous value.
	Save(ctx context.Context, key string, v any) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases resources held by the store.
	Close() error
}

// Open returns the store for driver rooted at path. An empty path resolves to
// ~/.finsync/state.json or ~/.finsync/state.db.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", DriverFile:
		if path == "" {
			p, err := defaultPath("state.json")
			if err != nil {
				return nil, err
			}
			path = p
		}
		return NewFileStore(path), nil
	case DriverSQLite:
		if path == "" {
			p, err := defaultPath("state.db")
			if err != nil {
				return nil, err
			}
			path = p
		}
		return OpenSQLite(path)
	}
	return nil, fmt.Errorf("unknown storage driver %q (want %s or %s)", driver, DriverFile, DriverSQLite)
}

func defaultPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, ".finsync", name), nil
}
