package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryBucket keeps objects in process. Used by tests and the offline CLI.
type MemoryBucket struct {
	name    string
	baseURL string

	mu      sync.RWMutex
	objects map[string]memObject
	// FailPut, when set, is returned by every Put.
	FailPut error
}

type memObject struct {
	body        []byte
	contentType string
}

func NewMemoryBucket(name, baseURL string) *MemoryBucket {
	if baseURL == "" {
		baseURL = "https://memory.invalid"
	}
	return &MemoryBucket{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]memObject),
	}
}

func (m *MemoryBucket) Name() string          { return m.name }
func (m *MemoryBucket) URI(key string) string { return "mem://" + m.name + "/" + key }

func (m *MemoryBucket) Put(_ context.Context, key string, body []byte, contentType string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPut != nil {
		return m.FailPut
	}
	m.objects[key] = memObject{body: append([]byte(nil), body...), contentType: contentType}
	return nil
}

func (m *MemoryBucket) Exists(_ context.Context, key string) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryBucket) URL(_ context.Context, key string) (string, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	return m.baseURL + "/" + m.name + "/" + key, nil
}

// Get returns a copy of the stored body and its content type.
func (m *MemoryBucket) Get(key string) ([]byte, string, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", m.URI(key), ErrNotFound)
	}
	return append([]byte(nil), obj.body...), obj.contentType, nil
}

// Keys lists stored keys in sorted order.
func (m *MemoryBucket) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
