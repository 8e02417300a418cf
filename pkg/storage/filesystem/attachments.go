// Package filesystem stores document attachments on local disk, one
// directory per document and one file per attachment.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/platinummonkey/httpusers/pkg/storage"
)

// Attachments implements storage.AttachmentStore under rootDir
type Attachments struct {
	rootDir string
}

// New creates rootDir if needed
func New(rootDir string) (*Attachments, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &Attachments{rootDir: rootDir}, nil
}

// escape maps an id or name to a single path element
func escape(s string) (string, error) {
	e := url.PathEscape(s)
	if e == "" || e == "." || e == ".." {
		return "", fmt.Errorf("invalid attachment path element %q", s)
	}
	return e, nil
}

func (a *Attachments) docDir(docID string) (string, error) {
	d, err := escape(docID)
	if err != nil {
		return "", err
	}
	return filepath.Join(a.rootDir, d), nil
}

func (a *Attachments) path(docID, name string) (string, error) {
	dir, err := a.docDir(docID)
	if err != nil {
		return "", err
	}
	n, err := escape(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, n), nil
}

// Save writes the attachment through a temp file and rename
func (a *Attachments) Save(_ context.Context, docID, name string, data []byte) error {
	p, err := a.path(docID, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write attachment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close attachment: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to move attachment into place: %w", err)
	}
	return nil
}

// Get implements storage.AttachmentStore
func (a *Attachments) Get(_ context.Context, docID, name string) ([]byte, error) {
	p, err := a.path(docID, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("attachment %s/%s: %w", docID, name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	return data, nil
}

// List implements storage.AttachmentStore
func (a *Attachments) List(_ context.Context, docID string) ([]string, error) {
	dir, err := a.docDir(docID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		name, err := url.PathUnescape(entry.Name())
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete implements storage.AttachmentStore
func (a *Attachments) Delete(_ context.Context, docID, name string) error {
	p, err := a.path(docID, name)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("attachment %s/%s: %w", docID, name, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}

var _ storage.AttachmentStore = (*Attachments)(nil)
