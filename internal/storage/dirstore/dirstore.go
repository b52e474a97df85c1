// Package dirstore provides primitives for directory-backed entity stores.
// Each entity gets its own subdirectory holding a JSON document plus optional
// append-only JSONL companion files.
package dirstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrNotFound is returned when an entity directory or document is missing.
var ErrNotFound = errors.New("not found")

// Store manages one directory tree of entities.
type Store struct {
	mu     sync.RWMutex
	root   string
	entity string // used in error messages: "task", "goal", "mission"
}

// New creates a Store rooted at root. The directory is created lazily.
func New(root, entity string) *Store {
	return &Store{root: root, entity: entity}
}

// Lock acquires the store's exclusive lock.
func (s *Store) Lock() { s.mu.Lock() }

// Unlock releases the exclusive lock.
func (s *Store) Unlock() { s.mu.Unlock() }

// RLock acquires the shared lock.
func (s *Store) RLock() { s.mu.RLock() }

// RUnlock releases the shared lock.
func (s *Store) RUnlock() { s.mu.RUnlock() }

func (s *Store) dir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Store) path(id, name string) string {
	return filepath.Join(s.root, id, name)
}

// WriteDoc atomically writes v as indented JSON to the named document,
// creating the entity directory if needed.
func (s *Store) WriteDoc(id, name string, v any) error {
	if err := os.MkdirAll(s.dir(id), 0o755); err != nil {
		return fmt.Errorf("create %s dir: %w", s.entity, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.entity, err)
	}

	path := s.path(id, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.entity, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", s.entity, err)
	}
	return nil
}

// ReadDoc reads the named document into out. Returns ErrNotFound when the
// entity or document does not exist.
func (s *Store) ReadDoc(id, name string, out any) error {
	data, err := os.ReadFile(s.path(id, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s %s: %w", s.entity, id, ErrNotFound)
		}
		return fmt.Errorf("read %s %s: %w", s.entity, id, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s %s: %w", s.entity, id, err)
	}
	return nil
}

// Remove deletes an entity directory and everything in it.
func (s *Store) Remove(id string) error {
	return os.RemoveAll(s.dir(id))
}

// IDs returns the names of all entity directories, sorted.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s dirs: %w", s.entity, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Append writes v as one JSON line to the named companion file.
func (s *Store) Append(id, name string, v any) error {
	if err := os.MkdirAll(s.dir(id), 0o755); err != nil {
		return fmt.Errorf("create %s dir: %w", s.entity, err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s line: %w", name, err)
	}

	f, err := os.OpenFile(s.path(id, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", name, err)
	}
	return nil
}

// Lines reads every JSON line of a companion file into values of type T.
// Missing files yield a nil slice; corrupted lines are skipped.
func Lines[T any](s *Store, id, name string) ([]T, error) {
	f, err := os.Open(s.path(id, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	var out []T
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}
	return out, nil
}
