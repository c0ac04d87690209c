package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// FileStoreVersion is the current schema version of the state file.
const FileStoreVersion = 1

// corruptSuffix is appended to a state file that could not be parsed.
const corruptSuffix = ".corrupt"

// fileData is the serialized form of the file store.
type fileData struct {
	Version int                        `json:"version"`
	Items   map[string]json.RawMessage `json:"items"`
}

// FileStore keeps every key in one JSON document, rewritten atomically on each change.
// Loads from a corrupt document fail with ErrStoreCorrupted; the next Save or
// Delete moves it aside and starts over.
type FileStore struct {
	mu       sync.Mutex
	filePath string
}

// NewFileStore returns a store backed by filePath. The file is created on first save.
func NewFileStore(filePath string) *FileStore {
	return &FileStore{filePath: filePath}
}

// FilePath returns the path of the state file.
func (s *FileStore) FilePath() string {
	return s.filePath
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, key string, v any) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return false, err
	}
	raw, ok := data.Items[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("%w: key %q: %w", ErrStoreCorrupted, key, err)
	}
	return true, nil
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, key string, v any) error {
	if key == "" {
		return ErrEmptyKey
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %q: %w", key, err)
	}
	return s.update(func(d *fileData) { d.Items[key] = raw })
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.update(func(d *fileData) { delete(d.Items, key) })
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) update(mutate func(*fileData)) error {
	unlock, lockErr := s.acquireFileLock()
	if lockErr != nil {
		return fmt.Errorf("acquiring file lock: %w", lockErr)
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if errors.Is(err, ErrStoreCorrupted) {
		data, err = s.quarantine(err)
	}
	if err != nil {
		return err
	}
	mutate(data)
	return s.write(data)
}

// quarantine moves an unreadable state file to FilePath()+".corrupt" and
// returns an empty document.
func (s *FileStore) quarantine(cause error) (*fileData, error) {
	aside := s.filePath + corruptSuffix
	if err := os.Rename(s.filePath, aside); err != nil {
		return nil, fmt.Errorf("moving corrupt state aside (%w): %w", cause, err)
	}
	return &fileData{Version: FileStoreVersion, Items: make(map[string]json.RawMessage)}, nil
}

// read loads the document. A missing file is an empty store.
func (s *FileStore) read() (*fileData, error) {
	empty := &fileData{Version: FileStoreVersion, Items: make(map[string]json.RawMessage)}

	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreCorrupted, err)
	}
	if data.Version != FileStoreVersion {
		return nil, fmt.Errorf("%w: unsupported version %d (expected %d)",
			ErrStoreCorrupted, data.Version, FileStoreVersion)
	}
	if data.Items == nil {
		data.Items = make(map[string]json.RawMessage)
	}
	return &data, nil
}

// write stores the document via a temp file and rename.
func (s *FileStore) write(data *fileData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(s.filePath), 0o700); mkdirErr != nil {
		return fmt.Errorf("creating state directory: %w", mkdirErr)
	}

	tmpPath := s.filePath + ".tmp"
	if writeErr := os.WriteFile(tmpPath, raw, 0o600); writeErr != nil {
		return fmt.Errorf("writing state temp file: %w", writeErr)
	}
	if renameErr := os.Rename(tmpPath, s.filePath); renameErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming state temp file: %w", renameErr)
	}
	return nil
}

// acquireFileLock takes a cross-process advisory lockfile and returns its release func.
func (s *FileStore) acquireFileLock() (func(), error) {
	lockPath := s.filePath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	const maxRetries = 10
	const retryDelay = 100 * time.Millisecond
	const staleLockAge = 30 * time.Second

	for range maxRetries {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if removeStaleLock(lockPath, staleLockAge) {
			continue
		}
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("could not acquire lock on %s after retries", lockPath)
}

// removeStaleLock removes a lock older than staleLockAge whose owner is gone.
func removeStaleLock(lockPath string, staleLockAge time.Duration) bool {
	info, statErr := os.Stat(lockPath)
	if statErr != nil || time.Since(info.ModTime()) <= staleLockAge {
		return false
	}
	if lockHeldByLiveProcess(lockPath) {
		return false
	}
	_ = os.Remove(lockPath)
	return true
}

func lockHeldByLiveProcess(lockPath string) bool {
	pidData, readErr := os.ReadFile(lockPath)
	if readErr != nil || len(pidData) == 0 {
		return false
	}
	var pid int
	if _, scanErr := fmt.Sscanf(string(pidData), "%d", &pid); scanErr != nil || pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}
