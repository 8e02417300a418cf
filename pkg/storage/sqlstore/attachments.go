package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/httpusers/pkg/storage"
)

// Attachments implements storage.AttachmentStore in the attachments table
type Attachments struct {
	store *Store
}

// NewAttachments shares the store's connection and dialect
func NewAttachments(store *Store) *Attachments {
	return &Attachments{store: store}
}

// Save upserts an attachment
func (a *Attachments) Save(ctx context.Context, docID, name string, data []byte) (err error) {
	ctx, span := a.store.startSpan(ctx, "SaveAttachment",
		attribute.String("document.id", docID),
		attribute.String("attachment.name", name),
		attribute.Int("attachment.size", len(data)),
	)
	defer func() { endSpan(span, err) }()

	_, err = a.store.db.ExecContext(ctx, a.store.dialect.Rebind(`
		INSERT INTO attachments (doc_id, name, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (doc_id, name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`), docID, name, data, a.store.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save attachment: %w", err)
	}
	return nil
}

// Get returns the attachment body
func (a *Attachments) Get(ctx context.Context, docID, name string) (data []byte, err error) {
	ctx, span := a.store.startSpan(ctx, "GetAttachment",
		attribute.String("document.id", docID),
		attribute.String("attachment.name", name),
	)
	defer func() { endSpan(span, err) }()

	err = a.store.db.QueryRowContext(ctx, a.store.dialect.Rebind(
		`SELECT data FROM attachments WHERE doc_id = $1 AND name = $2`), docID, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("attachment %s/%s: %w", docID, name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return data, nil
}

// List returns attachment names for a document
func (a *Attachments) List(ctx context.Context, docID string) ([]string, error) {
	rows, err := a.store.db.QueryContext(ctx, a.store.dialect.Rebind(
		`SELECT name FROM attachments WHERE doc_id = $1 ORDER BY name`), docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan attachment name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes an attachment
func (a *Attachments) Delete(ctx context.Context, docID, name string) error {
	result, err := a.store.db.ExecContext(ctx, a.store.dialect.Rebind(
		`DELETE FROM attachments WHERE doc_id = $1 AND name = $2`), docID, name)
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("attachment %s/%s: %w", docID, name, storage.ErrNotFound)
	}
	return nil
}

var _ storage.AttachmentStore = (*Attachments)(nil)
