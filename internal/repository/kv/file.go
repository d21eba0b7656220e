package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/agent-updater/internal/config"
)

// document is the on-disk layout: table -> id -> value.
type document map[string]map[string]string

// FileStore persists tables to a YAML file on disk.
// Every operation reads the file, applies the change and writes it back
// through a temporary file, so a crash never leaves a truncated document.
type FileStore struct {
	// path is the filesystem location of the YAML document.
	path string
	// mu serialises access to the document within this process.
	mu sync.Mutex
}

// NewFileStore creates a store that reads/writes YAML at the provided path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: filepath.Clean(path),
	}
}

// Path returns the document location.
func (s *FileStore) Path() string {
	return s.path
}

// Set writes value under key.
func (s *FileStore) Set(_ context.Context, key Key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	table := doc[key.Table]
	if table == nil {
		table = make(map[string]string, 1)
		doc[key.Table] = table
	}

	table[key.ID] = string(value)

	return s.save(doc)
}

// GetAll returns a copy of every value of table.
func (s *FileStore) GetAll(_ context.Context, table string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(doc[table]))
	for id, value := range doc[table] {
		result[id] = []byte(value)
	}

	return result, nil
}

// Clear removes table from the document.
func (s *FileStore) Clear(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := doc[table]; !ok {
		return nil
	}

	delete(doc, table)

	return s.save(doc)
}

// CompareAndReplace stores value under key if the current value equals expected.
func (s *FileStore) CompareAndReplace(_ context.Context, key Key, expected, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	current, ok := doc[key.Table][key.ID]
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	if !bytes.Equal([]byte(current), expected) {
		return fmt.Errorf("%s: %w", key, ErrConflict)
	}

	doc[key.Table][key.ID] = string(value)

	return s.save(doc)
}

// load reads the document; a missing file is an empty document.
func (s *FileStore) load() (document, error) {
	contents, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(document), nil
		}

		return nil, fmt.Errorf("read store file: %w", err)
	}

	doc := make(document)
	if err = yaml.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("decode store file: %w", err)
	}

	return doc, nil
}

// save writes the document next to the target and renames it into place.
func (s *FileStore) save(doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	temporary, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create store temp file: %w", err)
	}

	temporaryPath := temporary.Name()

	defer func() {
		_ = os.Remove(temporaryPath)
	}()

	if _, err = temporary.Write(data); err != nil {
		_ = temporary.Close()
		return fmt.Errorf("write store temp file: %w", err)
	}

	if err = temporary.Chmod(config.DefaultFilePermissions); err != nil {
		_ = temporary.Close()
		return fmt.Errorf("chmod store temp file: %w", err)
	}

	if err = temporary.Close(); err != nil {
		return fmt.Errorf("close store temp file: %w", err)
	}

	if err = os.Rename(temporaryPath, s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}

	return nil
}
