package tokencache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Storage is a string key/value store with web-storage semantics. Missing keys
// are reported with ok=false, never as errors.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*FileStorage)(nil)
)

// MemoryStorage lives as long as the process, like a browser's sessionStorage.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MemoryStorage) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Clear drops every key, which is what closing a tab does to sessionStorage.
func (m *MemoryStorage) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]string)
}

// FileStorage persists keys to a YAML document so they survive restarts, like
// a browser's localStorage. Every mutation rewrites the file atomically.
type FileStorage struct {
	mu    sync.RWMutex
	path  string
	items map[string]string
}

// OpenFileStorage loads path if it exists. A missing file starts empty.
func OpenFileStorage(path string) (*FileStorage, error) {
	fsStore := &FileStorage{path: path, items: make(map[string]string)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fsStore, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[OpenFileStorage] read")
	}
	if err := yaml.Unmarshal(data, &fsStore.items); err != nil {
		return nil, pkgerrors.Wrapf(err, "[OpenFileStorage] parse %s", path)
	}
	if fsStore.items == nil {
		fsStore.items = make(map[string]string)
	}
	return fsStore, nil
}

func (f *FileStorage) Path() string {
	return f.path
}

func (f *FileStorage) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.items[key]
	return v, ok
}

func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if current, ok := f.items[key]; ok && current == value {
		return nil
	}
	f.items[key] = value
	return f.flushLocked()
}

func (f *FileStorage) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[key]; !ok {
		return nil
	}
	delete(f.items, key)
	return f.flushLocked()
}

func (f *FileStorage) flushLocked() error {
	data, err := yaml.Marshal(f.items)
	if err != nil {
		return pkgerrors.Wrap(err, "[FileStorage.flush] marshal")
	}
	return WriteFileAtomic(f.path, data)
}

// WriteFileAtomic writes data to a temp file next to path and renames it over
// path, so readers never observe a partial document.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return pkgerrors.Wrap(err, "[WriteFileAtomic] mkdir")
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return pkgerrors.Wrap(err, "[WriteFileAtomic] create temp")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return pkgerrors.Wrap(err, "[WriteFileAtomic] write")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return pkgerrors.Wrap(err, "[WriteFileAtomic] chmod")
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrap(err, "[WriteFileAtomic] close")
	}
	return pkgerrors.Wrap(os.Rename(tmp.Name(), path), "[WriteFileAtomic] rename")
}
