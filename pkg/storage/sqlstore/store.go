// Package sqlstore implements the document and attachment stores on top of
// database/sql. PostgreSQL (lib/pq or pgx) and SQLite share one code path;
// only placeholders and error classification differ per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/httpusers/pkg/storage"
)

var tracer = otel.Tracer("httpusers/storage/sqlstore")

const selectDocument = `SELECT d.id, d.kind, d.rev, d.body, d.created_at, d.updated_at FROM documents d`

// Store implements storage.Store
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New wraps an open database handle. The schema must already exist (see Migrate).
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// DB exposes the underlying handle for health checks
func (s *Store) DB() *sql.DB {
	return s.db
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *Store) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("db.system", s.dialect.Name),
		attribute.String("db.operation", op),
	)
	return tracer.Start(ctx, "sqlstore."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Get implements storage.DocumentReader
func (s *Store) Get(ctx context.Context, id string) (doc *storage.Document, err error) {
	ctx, span := s.startSpan(ctx, "Get", attribute.String("document.id", id))
	defer func() { endSpan(span, err) }()

	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(selectDocument+` WHERE d.id = $1`), id)
	doc, err = scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if err := s.loadKeys(ctx, []*storage.Document{doc}); err != nil {
		return nil, err
	}
	return doc, nil
}

// List implements storage.DocumentReader
func (s *Store) List(ctx context.Context, kind string) (docs []*storage.Document, err error) {
	ctx, span := s.startSpan(ctx, "List", attribute.String("document.kind", kind))
	defer func() { endSpan(span, err) }()

	return s.queryDocuments(ctx, selectDocument+` WHERE d.kind = $1 ORDER BY d.id`, kind)
}

// Create implements storage.DocumentWriter
func (s *Store) Create(ctx context.Context, doc *storage.Document) (err error) {
	ctx, span := s.startSpan(ctx, "Create", attribute.String("document.id", doc.ID))
	defer func() { endSpan(span, err) }()

	now := s.now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO documents (id, kind, rev, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`), doc.ID, doc.Kind, 1, string(doc.Body), now, now)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%s already exists: %w", doc.ID, storage.ErrConflict)
		}
		return fmt.Errorf("failed to create document: %w", err)
	}

	if err := s.insertKeys(ctx, tx, doc); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}

	doc.Rev = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

// Update implements storage.DocumentWriter
func (s *Store) Update(ctx context.Context, doc *storage.Document) (err error) {
	ctx, span := s.startSpan(ctx, "Update",
		attribute.String("document.id", doc.ID),
		attribute.Int64("document.rev", doc.Rev),
	)
	defer func() { endSpan(span, err) }()

	now := s.now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE documents SET rev = rev + 1, body = $1, updated_at = $2
		WHERE id = $3 AND rev = $4
	`), string(doc.Body), now, doc.ID, doc.Rev)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		var rev int64
		err := tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT rev FROM documents WHERE id = $1`), doc.ID).Scan(&rev)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%s: %w", doc.ID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read document revision: %w", err)
		}
		return fmt.Errorf("%s at rev %d, got %d: %w", doc.ID, rev, doc.Rev, storage.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM document_keys WHERE doc_id = $1`), doc.ID); err != nil {
		return fmt.Errorf("failed to clear document keys: %w", err)
	}
	if err := s.insertKeys(ctx, tx, doc); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}

	doc.Rev++
	doc.UpdatedAt = now
	return nil
}

// Destroy implements storage.DocumentWriter
func (s *Store) Destroy(ctx context.Context, id string) (err error) {
	ctx, span := s.startSpan(ctx, "Destroy", attribute.String("document.id", id))
	defer func() { endSpan(span, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM document_keys WHERE doc_id = $1`), id); err != nil {
		return fmt.Errorf("failed to delete document keys: %w", err)
	}
	result, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM documents WHERE id = $1`), id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// Query implements storage.ViewQuerier
func (s *Store) Query(ctx context.Context, kind, view, key string) (docs []*storage.Document, err error) {
	ctx, span := s.startSpan(ctx, "Query",
		attribute.String("document.kind", kind),
		attribute.String("view", view),
	)
	defer func() { endSpan(span, err) }()

	return s.queryDocuments(ctx, selectDocument+`
		WHERE d.id IN (
			SELECT k.doc_id FROM document_keys k
			WHERE k.kind = $1 AND k.view_name = $2 AND k.index_key = $3
		)
		ORDER BY d.id`, kind, view, key)
}

// QueryPrefix implements storage.ViewQuerier
func (s *Store) QueryPrefix(ctx context.Context, kind, view, prefix string) (docs []*storage.Document, err error) {
	ctx, span := s.startSpan(ctx, "QueryPrefix",
		attribute.String("document.kind", kind),
		attribute.String("view", view),
	)
	defer func() { endSpan(span, err) }()

	return s.queryDocuments(ctx, selectDocument+`
		WHERE d.id IN (
			SELECT k.doc_id FROM document_keys k
			WHERE k.kind = $1 AND k.view_name = $2 AND k.index_key LIKE $3 ESCAPE '\'
		)
		ORDER BY d.id`, kind, view, escapeLike(prefix)+"%")
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]*storage.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*storage.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	if err := s.loadKeys(ctx, docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// loadKeys populates Keys for the given documents with a single query
func (s *Store) loadKeys(ctx context.Context, docs []*storage.Document) error {
	if len(docs) == 0 {
		return nil
	}

	byID := make(map[string]*storage.Document, len(docs))
	placeholders := make([]string, len(docs))
	args := make([]any, len(docs))
	for i, doc := range docs {
		byID[doc.ID] = doc
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = doc.ID
	}

	query := `SELECT doc_id, view_name, index_key FROM document_keys WHERE doc_id IN (` +
		strings.Join(placeholders, ", ") + `) ORDER BY doc_id, view_name, index_key`
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to query document keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var docID, view, key string
		if err := rows.Scan(&docID, &view, &key); err != nil {
			return fmt.Errorf("failed to scan document key: %w", err)
		}
		doc := byID[docID]
		if doc == nil {
			continue
		}
		if doc.Keys == nil {
			doc.Keys = make(map[string][]string)
		}
		doc.Keys[view] = append(doc.Keys[view], key)
	}
	return rows.Err()
}

func (s *Store) insertKeys(ctx context.Context, tx *sql.Tx, doc *storage.Document) error {
	views := make([]string, 0, len(doc.Keys))
	for view := range doc.Keys {
		views = append(views, view)
	}
	sort.Strings(views)

	insert := s.dialect.Rebind(`
		INSERT INTO document_keys (doc_id, kind, view_name, index_key)
		VALUES ($1, $2, $3, $4)
	`)
	for _, view := range views {
		seen := make(map[string]bool)
		for _, key := range doc.Keys[view] {
			if seen[key] {
				continue
			}
			seen[key] = true
			if _, err := tx.ExecContext(ctx, insert, doc.ID, doc.Kind, view, key); err != nil {
				return fmt.Errorf("failed to index %s on %s: %w", doc.ID, view, err)
			}
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*storage.Document, error) {
	doc := &storage.Document{}
	var body []byte
	if err := row.Scan(&doc.ID, &doc.Kind, &doc.Rev, &body, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Body = body
	return doc, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
