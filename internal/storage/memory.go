package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Object is a stored blob and its content type.
type Object struct {
	Body        []byte
	ContentType string
}

// Memory keeps objects in process memory. It serves mock mode and tests.
type Memory struct {
	mu         sync.RWMutex
	objects    map[string]Object
	publicBase string
}

// NewMemory returns an empty store whose public URLs start with publicBase.
func NewMemory(publicBase string) *Memory {
	if publicBase == "" {
		publicBase = "memory://objects"
	}
	return &Memory{objects: map[string]Object{}, publicBase: publicBase}
}

func (m *Memory) Upload(_ context.Context, key string, body []byte, contentType string) error {
	if key == "" {
		return fmt.Errorf("storage: empty key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Body: append([]byte(nil), body...), ContentType: contentType}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) PublicURL(key string) *string {
	return publicURL(m.publicBase, "", "", key)
}

// Get returns the object stored under key.
func (m *Memory) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys lists stored keys in lexical order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
