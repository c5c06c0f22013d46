// Package store provides atomic, crash-safe persistence of JSON
// documents keyed by entity kind and sanitized key. It knows nothing
// about the schemas of the documents it holds; the conversation,
// session, and binding layers each own their record types.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlejandroLoraG/luke-poc/pkg/logging"
)

// Kind names an entity family. Each kind maps to one subdirectory under
// the storage root.
type Kind string

const (
	KindConversations Kind = "conversations"
	KindSessions      Kind = "sessions"
	KindBindings      Kind = "chat_bindings"
)

// ErrInvalidKey reports a key that cannot be mapped to a file name.
var ErrInvalidKey = errors.New("store: invalid key")

// Store is the persistence contract the stateful components write
// through. Get, Delete, and ListKeys never fail loudly: absent and
// unreadable documents both read as absent, so a disk problem degrades
// the process instead of crashing it.
type Store interface {
	Put(ctx context.Context, kind Kind, key string, doc any) error
	Get(ctx context.Context, kind Kind, key string, out any) bool
	Delete(ctx context.Context, kind Kind, key string) bool
	ListKeys(ctx context.Context, kind Kind) []string
}

// FileStore implements Store with one JSON file per document. Every Put
// goes through a temp file in the same directory followed by an atomic
// rename, so a crash mid-write can never leave a torn document visible
// under the final name.
type FileStore struct {
	root string
	log  *logging.Logger
}

// NewFileStore creates the storage root and one directory per kind.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("store: storage root must not be empty")
	}
	for _, kind := range []Kind{KindConversations, KindSessions, KindBindings} {
		dir := filepath.Join(root, string(kind))
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("store: init directory %s: %w", dir, err)
		}
	}

	logger, _ := NewStoreLogger()
	return &FileStore{root: root, log: logger}, nil
}

// NewStoreLogger returns the component logger for the store. Split out
// so tests can assert fallback behavior without a FileStore.
func NewStoreLogger() (*logging.Logger, error) {
	return logging.NewLogger("store")
}

// sanitizeKey maps a key to the filesystem-safe alphabet [A-Za-z0-9_-].
// Anything else, including path separators and dots, becomes '_', which
// also neutralizes traversal sequences.
func sanitizeKey(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String(), nil
}

func (s *FileStore) pathFor(kind Kind, key string) (string, error) {
	safe, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	dir, err := filepath.Abs(filepath.Join(s.root, string(kind)))
	if err != nil {
		return "", fmt.Errorf("store: abs dir: %w", err)
	}
	resolved := filepath.Join(dir, safe+".json")
	if !strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("store: path traversal detected for key %q: %w", key, ErrInvalidKey)
	}
	return resolved, nil
}

// Put persists a document atomically. Failures are logged with the kind
// and key and returned so callers can decide whether to degrade.
func (s *FileStore) Put(_ context.Context, kind Kind, key string, doc any) error {
	path, err := s.pathFor(kind, key)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.log.Errorf("marshal %s/%s: %v", kind, key, err)
		return fmt.Errorf("store: marshal %s/%s: %w", kind, key, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp_*")
	if err != nil {
		s.log.Errorf("create temp file for %s/%s: %v", kind, key, err)
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		s.log.Errorf("write temp file for %s/%s: %v", kind, key, err)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		s.log.Errorf("close temp file for %s/%s: %v", kind, key, err)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		s.log.Errorf("atomic rename for %s/%s: %v", kind, key, err)
		return fmt.Errorf("store: atomic rename %s: %w", path, err)
	}
	return nil
}

// Get loads a document into out. It returns false when the key is
// absent, the key is invalid, or the document is unreadable/corrupt;
// the latter cases are logged so the operator can find the bad file.
func (s *FileStore) Get(_ context.Context, kind Kind, key string, out any) bool {
	path, err := s.pathFor(kind, key)
	if err != nil {
		return false
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	if err != nil {
		s.log.Errorf("read %s/%s: %v", kind, key, err)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.log.Warnf("corrupt document %s/%s, treating as absent: %v", kind, key, err)
		return false
	}
	return true
}

// Delete removes the persisted document. Returns true when a document
// was actually removed.
func (s *FileStore) Delete(_ context.Context, kind Kind, key string) bool {
	path, err := s.pathFor(kind, key)
	if err != nil {
		return false
	}
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Errorf("delete %s/%s: %v", kind, key, err)
		}
		return false
	}
	return true
}

// ListKeys returns the sanitized keys of all documents of a kind. Temp
// files left behind by a crashed writer are ignored.
func (s *FileStore) ListKeys(_ context.Context, kind Kind) []string {
	dir := filepath.Join(s.root, string(kind))
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Errorf("list %s: %v", kind, err)
		return nil
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".tmp_") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	return keys
}
