// Package objectstore holds uploaded document bytes. Metadata lives in the
// document store; this layer only maps storage keys to content.
package objectstore

import (
	"context"
	"sync"

	"securevault/pkg/platform/sentinel"
)

// Store reads and writes immutable blobs by key.
type Store interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}

type object struct {
	contentType string
	data        []byte
}

// InMemory keeps blobs in process memory. Suitable for tests and local runs.
type InMemory struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewInMemory() *InMemory {
	return &InMemory{objects: make(map[string]object)}
}

func (s *InMemory) Put(_ context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return sentinel.ErrConflict
	}
	s.objects[key] = object{contentType: contentType, data: append([]byte(nil), data...)}
	return nil
}

func (s *InMemory) Get(_ context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", sentinel.ErrNotFound
	}
	return append([]byte(nil), obj.data...), obj.contentType, nil
}

func (s *InMemory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.objects, key)
	return nil
}
