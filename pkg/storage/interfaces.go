package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a document or attachment does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned for duplicate ids and stale revisions
	ErrConflict = errors.New("document update conflict")
)

// Document is the unit of persistence
type Document struct {
	ID        string              `json:"id"`
	Kind      string              `json:"kind"`
	Rev       int64               `json:"rev"`
	Body      json.RawMessage     `json:"body"`
	Keys      map[string][]string `json:"-"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Clone returns a deep copy so callers cannot mutate store-owned state
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Body = append(json.RawMessage(nil), d.Body...)
	if d.Keys != nil {
		out.Keys = make(map[string][]string, len(d.Keys))
		for view, keys := range d.Keys {
			out.Keys[view] = append([]string(nil), keys...)
		}
	}
	return &out
}

// DocumentReader provides read access by id
type DocumentReader interface {
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, kind string) ([]*Document, error)
}

// DocumentWriter provides write access. Create sets Rev to 1, Update
// requires doc.Rev to match the stored revision and increments it.
type DocumentWriter interface {
	Create(ctx context.Context, doc *Document) error
	Update(ctx context.Context, doc *Document) error
	Destroy(ctx context.Context, id string) error
}

// ViewQuerier resolves secondary index lookups. Results are ordered by id.
type ViewQuerier interface {
	Query(ctx context.Context, kind, view, key string) ([]*Document, error)
	QueryPrefix(ctx context.Context, kind, view, prefix string) ([]*Document, error)
}

// Store is the full document store contract
type Store interface {
	DocumentReader
	DocumentWriter
	ViewQuerier
}

// HealthChecker is implemented by backends that hold remote connections
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// AttachmentStore persists named binary blobs next to a document
type AttachmentStore interface {
	Save(ctx context.Context, docID, name string, data []byte) error
	Get(ctx context.Context, docID, name string) ([]byte, error)
	List(ctx context.Context, docID string) ([]string, error)
	Delete(ctx context.Context, docID, name string) error
}
