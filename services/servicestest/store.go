package servicestest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"manuscript-converter/models"
	"manuscript-converter/services"
)

// MemoryStore is an in-memory services.ObjectStore.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   []string

	// Err makes the named method fail.
	Err map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// Keys returns the stored keys under prefix in lexical order.
func (m *MemoryStore) Keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Calls returns "Method:argument" entries in call order.
func (m *MemoryStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MemoryStore) Count(call string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (m *MemoryStore) record(method, arg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method+":"+arg)
	return m.Err[method]
}

func (m *MemoryStore) Download(_ context.Context, key, localPath string) error {
	if err := m.record("Download", key); err != nil {
		return err
	}
	data, ok := m.Get(key)
	if !ok {
		return fmt.Errorf("no such key %s", key)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (m *MemoryStore) Save(_ context.Context, key string, data []byte) error {
	if err := m.record("Save", key); err != nil {
		return err
	}
	m.Put(key, data)
	return nil
}

func (m *MemoryStore) DeleteRecursive(_ context.Context, prefix string) error {
	if err := m.record("DeleteRecursive", prefix); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
		}
	}
	return nil
}

func (m *MemoryStore) CopyRecursive(_ context.Context, localDir, remotePrefix string) error {
	if err := m.record("CopyRecursive", remotePrefix); err != nil {
		return err
	}
	return filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		m.Put(remotePrefix+filepath.ToSlash(rel), data)
		return nil
	})
}

func (m *MemoryStore) ListObjects(_ context.Context, prefix string) ([]services.ObjectInfo, error) {
	if err := m.record("ListObjects", prefix); err != nil {
		return nil, err
	}
	var out []services.ObjectInfo
	for _, k := range m.Keys(prefix) {
		data, _ := m.Get(k)
		out = append(out, services.ObjectInfo{Key: k, Size: int64(len(data))})
	}
	return out, nil
}

type HTMLUpdate struct {
	Kind   models.ResourceKind
	ID     string
	Result models.HTMLResult
}

type PDFUpdate struct {
	Kind   models.ResourceKind
	ID     string
	Result models.PDFResult
}

// FakeRecords is a services.RecordStore that remembers every update.
type FakeRecords struct {
	mu   sync.Mutex
	html []HTMLUpdate
	pdf  []PDFUpdate
	Err  error
}

func (f *FakeRecords) UpdateHTML(_ context.Context, kind models.ResourceKind, id string, result models.HTMLResult) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.html = append(f.html, HTMLUpdate{Kind: kind, ID: id, Result: result})
	return nil
}

func (f *FakeRecords) UpdatePDF(_ context.Context, kind models.ResourceKind, id string, result models.PDFResult) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pdf = append(f.pdf, PDFUpdate{Kind: kind, ID: id, Result: result})
	return nil
}

func (f *FakeRecords) HTMLUpdates() []HTMLUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]HTMLUpdate(nil), f.html...)
}

func (f *FakeRecords) PDFUpdates() []PDFUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PDFUpdate(nil), f.pdf...)
}
