// Package memory provides in-process implementations of the storage
// contracts. Data does not survive a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/httpusers/pkg/storage"
)

// Store implements storage.Store with maps guarded by a RWMutex
type Store struct {
	mu   sync.RWMutex
	docs map[string]*storage.Document
	now  func() time.Time
}

// NewStore creates an empty in-memory document store
func NewStore() *Store {
	return &Store{
		docs: make(map[string]*storage.Document),
		now:  time.Now,
	}
}

// Get implements storage.DocumentReader
func (s *Store) Get(_ context.Context, id string) (*storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	return doc.Clone(), nil
}

// List implements storage.DocumentReader
func (s *Store) List(_ context.Context, kind string) ([]*storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(doc *storage.Document) bool {
		return doc.Kind == kind
	}), nil
}

// Create implements storage.DocumentWriter
func (s *Store) Create(_ context.Context, doc *storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; exists {
		return fmt.Errorf("%s already exists: %w", doc.ID, storage.ErrConflict)
	}

	now := s.now().UTC()
	doc.Rev = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now
	s.docs[doc.ID] = doc.Clone()
	return nil
}

// Update implements storage.DocumentWriter
func (s *Store) Update(_ context.Context, doc *storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[doc.ID]
	if !ok {
		return fmt.Errorf("%s: %w", doc.ID, storage.ErrNotFound)
	}
	if current.Rev != doc.Rev {
		return fmt.Errorf("%s at rev %d, got %d: %w", doc.ID, current.Rev, doc.Rev, storage.ErrConflict)
	}

	doc.Rev = current.Rev + 1
	doc.CreatedAt = current.CreatedAt
	doc.UpdatedAt = s.now().UTC()
	s.docs[doc.ID] = doc.Clone()
	return nil
}

// Destroy implements storage.DocumentWriter
func (s *Store) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	delete(s.docs, id)
	return nil
}

// Query implements storage.ViewQuerier
func (s *Store) Query(_ context.Context, kind, view, key string) ([]*storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(doc *storage.Document) bool {
		return doc.Kind == kind && hasKey(doc.Keys[view], func(k string) bool { return k == key })
	}), nil
}

// QueryPrefix implements storage.ViewQuerier
func (s *Store) QueryPrefix(_ context.Context, kind, view, prefix string) ([]*storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(doc *storage.Document) bool {
		return doc.Kind == kind && hasKey(doc.Keys[view], func(k string) bool { return strings.HasPrefix(k, prefix) })
	}), nil
}

// collect must be called with the lock held
func (s *Store) collect(match func(*storage.Document) bool) []*storage.Document {
	var out []*storage.Document
	for _, doc := range s.docs {
		if match(doc) {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func hasKey(keys []string, match func(string) bool) bool {
	for _, k := range keys {
		if match(k) {
			return true
		}
	}
	return false
}
