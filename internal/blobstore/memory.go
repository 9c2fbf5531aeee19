package blobstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type memoryStore struct {
	keys keyspace

	mu      sync.RWMutex
	objects map[string]Object
}

func newMemoryStore(prefix string) *memoryStore {
	return &memoryStore{keys: newKeyspace(prefix), objects: make(map[string]Object)}
}

func (m *memoryStore) Put(_ context.Context, key string, payload []byte, opts PutOptions) error {
	logical, full, err := m.keys.resolve(key)
	if err != nil {
		return err
	}
	obj := Object{
		Key:          logical,
		Data:         append([]byte(nil), payload...),
		ContentType:  strings.TrimSpace(opts.ContentType),
		Metadata:     cleanMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[full] = obj
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (Object, error) {
	logical, full, err := m.keys.resolve(key)
	if err != nil {
		return Object{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[full]
	if !ok {
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, logical)
	}
	obj.Data = append([]byte(nil), obj.Data...)
	obj.Metadata = cleanMetadata(obj.Metadata)
	return obj, nil
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	_, full, err := m.keys.resolve(key)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[full]
	return ok, nil
}
