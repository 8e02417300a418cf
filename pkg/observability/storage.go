package observability

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/httpusers/pkg/storage"
)

// InstrumentedStore records count and latency of every store call
type InstrumentedStore struct {
	next    storage.Store
	metrics *Metrics
	backend string
}

var (
	_ storage.Store         = (*InstrumentedStore)(nil)
	_ storage.HealthChecker = (*InstrumentedStore)(nil)
)

// InstrumentStore wraps next, labelling metrics with backend
func InstrumentStore(next storage.Store, metrics *Metrics, backend string) *InstrumentedStore {
	return &InstrumentedStore{next: next, metrics: metrics, backend: backend}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	status := "ok"
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = "not_found"
	case errors.Is(err, storage.ErrConflict):
		status = "conflict"
	case err != nil:
		status = "error"
	}
	s.metrics.StorageOperationsTotal.WithLabelValues(op, s.backend, status).Inc()
	s.metrics.StorageOperationDuration.WithLabelValues(op, s.backend).Observe(time.Since(start).Seconds())
}

func (s *InstrumentedStore) Get(ctx context.Context, id string) (doc *storage.Document, err error) {
	defer func(start time.Time) { s.observe("get", start, err) }(time.Now())
	return s.next.Get(ctx, id)
}

func (s *InstrumentedStore) List(ctx context.Context, kind string) (docs []*storage.Document, err error) {
	defer func(start time.Time) { s.observe("list", start, err) }(time.Now())
	return s.next.List(ctx, kind)
}

func (s *InstrumentedStore) Create(ctx context.Context, doc *storage.Document) (err error) {
	defer func(start time.Time) { s.observe("create", start, err) }(time.Now())
	return s.next.Create(ctx, doc)
}

func (s *InstrumentedStore) Update(ctx context.Context, doc *storage.Document) (err error) {
	defer func(start time.Time) { s.observe("update", start, err) }(time.Now())
	return s.next.Update(ctx, doc)
}

func (s *InstrumentedStore) Destroy(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { s.observe("destroy", start, err) }(time.Now())
	return s.next.Destroy(ctx, id)
}

func (s *InstrumentedStore) Query(ctx context.Context, kind, view, key string) (docs []*storage.Document, err error) {
	defer func(start time.Time) { s.observe("query", start, err) }(time.Now())
	return s.next.Query(ctx, kind, view, key)
}

func (s *InstrumentedStore) QueryPrefix(ctx context.Context, kind, view, prefix string) (docs []*storage.Document, err error) {
	defer func(start time.Time) { s.observe("query_prefix", start, err) }(time.Now())
	return s.next.QueryPrefix(ctx, kind, view, prefix)
}

// HealthCheck delegates to the wrapped store when it supports checks
func (s *InstrumentedStore) HealthCheck(ctx context.Context) error {
	if hc, ok := s.next.(storage.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
