package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/platinummonkey/httpusers/pkg/storage"
)

// Attachments implements storage.AttachmentStore in memory
type Attachments struct {
	mu    sync.RWMutex
	blobs map[string]map[string][]byte
}

// NewAttachments creates an empty attachment store
func NewAttachments() *Attachments {
	return &Attachments{blobs: make(map[string]map[string][]byte)}
}

// Save stores a copy of data under docID/name, replacing any previous value
func (a *Attachments) Save(_ context.Context, docID, name string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.blobs[docID] == nil {
		a.blobs[docID] = make(map[string][]byte)
	}
	a.blobs[docID][name] = append([]byte(nil), data...)
	return nil
}

// Get returns the attachment or storage.ErrNotFound
func (a *Attachments) Get(_ context.Context, docID, name string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	data, ok := a.blobs[docID][name]
	if !ok {
		return nil, fmt.Errorf("attachment %s/%s: %w", docID, name, storage.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// List returns attachment names for docID in sorted order
func (a *Attachments) List(_ context.Context, docID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.blobs[docID]))
	for name := range a.blobs[docID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes an attachment
func (a *Attachments) Delete(_ context.Context, docID, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.blobs[docID][name]; !ok {
		return fmt.Errorf("attachment %s/%s: %w", docID, name, storage.ErrNotFound)
	}
	delete(a.blobs[docID], name)
	return nil
}
