package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// A Store provides the current settings and owns the rolling error log. Implementations must
// serialize error log mutations, since several runs may complete at once.
type Store interface {
	// Settings returns a copy of the current settings.
	Settings() Settings

	// LastError returns the error log, one entry per line.
	LastError() string

	// ClearLastError empties the error log.
	ClearLastError() error

	// AppendToLastError adds an entry to the end of the error log.
	AppendToLastError(entry string) error
}

// MemoryStore is a Store which keeps everything in memory.
type MemoryStore struct {
	mu        sync.Mutex
	settings  Settings
	lastError string
}

// NewMemoryStore returns a MemoryStore holding the given settings.
func NewMemoryStore(s Settings) *MemoryStore {
	return &MemoryStore{settings: s}
}

func (m *MemoryStore) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// SetSettings replaces the settings.
func (m *MemoryStore) SetSettings(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
}

func (m *MemoryStore) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

func (m *MemoryStore) ClearLastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = ""
	return nil
}

func (m *MemoryStore) AppendToLastError(entry string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError += entry + "\n"
	return nil
}

type fileState struct {
	Settings  `yaml:",inline"`
	LastError string `yaml:"last_error"`
}

// FileStore is a Store persisted to a YAML file. Every mutation is written back immediately.
type FileStore struct {
	mu    sync.Mutex
	path  string
	state fileState
}

// OpenFileStore loads the store at path. A missing file yields an empty store which is created on
// the first write.
func OpenFileStore(path string) (*FileStore, error) {
	fsStore := &FileStore{path: path}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fsStore, nil
	} else if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &fsStore.state); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return fsStore, nil
}

func (f *FileStore) Settings() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Settings
}

// SetSettings replaces and persists the settings.
func (f *FileStore) SetSettings(s Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Settings = s
	return f.save()
}

func (f *FileStore) LastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.LastError
}

func (f *FileStore) ClearLastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.LastError = ""
	return f.save()
}

func (f *FileStore) AppendToLastError(entry string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.LastError += entry + "\n"
	return f.save()
}

// save writes the state via a temporary file so readers never observe a partial write. The
// caller must hold f.mu.
func (f *FileStore) save() error {
	b, err := yaml.Marshal(&f.state)
	if err != nil {
		return fmt.Errorf("config: failed to encode store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("config: failed to save %s: %w", f.path, err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("config: failed to save %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("config: failed to save %s: %w", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("config: failed to save %s: %w", f.path, err)
	}
	return nil
}
