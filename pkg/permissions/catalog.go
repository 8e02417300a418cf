package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/storage"
)

const (
	// Kind is the document kind of catalog entries
	Kind     = "Permission"
	idPrefix = "permission/"
)

// Defaults is the catalog seeded on first start
var Defaults = []Permission{
	{Name: Superuser, Type: TypeBoolean, Description: "Bypasses every permission check"},
	{Name: ModifyUsers, Type: TypeBoolean, Description: "Create, update and delete any user"},
	{Name: ModifyPermissions, Type: TypeBoolean, Description: "Grant and revoke permissions"},
	{Name: ConfirmUsers, Type: TypeBoolean, Description: "Confirm pending accounts"},
	{Name: ViewAllUsers, Type: TypeBoolean, Description: "List every user"},
	{Name: Search, Type: TypeBoolean, Description: "Search users by name"},
	{Name: AccessApp, Type: TypeArray, Description: "Access applications matching a pattern"},
}

// Catalog stores permission definitions in the document store
type Catalog struct {
	store storage.Store
	now   func() time.Time
}

// NewCatalog returns a catalog backed by store
func NewCatalog(store storage.Store) *Catalog {
	return &Catalog{store: store, now: time.Now}
}

func docID(name string) string {
	return idPrefix + name
}

// Get returns the catalog entry for name
func (c *Catalog) Get(ctx context.Context, name string) (*Permission, error) {
	doc, err := c.store.Get(ctx, docID(name))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apierrors.NotFound(fmt.Sprintf("permission %q not found", name))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return decode(doc)
}

// List returns all catalog entries ordered by name
func (c *Catalog) List(ctx context.Context) ([]*Permission, error) {
	docs, err := c.store.List(ctx, Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	out := make([]*Permission, 0, len(docs))
	for _, doc := range docs {
		p, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Create adds a catalog entry
func (c *Catalog) Create(ctx context.Context, p *Permission) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apierrors.Validation("permission name is required")
	}
	if p.Type == "" {
		p.Type = TypeBoolean
	}
	if !p.Type.Valid() {
		return apierrors.Validation(fmt.Sprintf("permission type must be %q or %q", TypeBoolean, TypeArray))
	}

	now := c.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal permission: %w", err)
	}

	err = c.store.Create(ctx, &storage.Document{ID: docID(p.Name), Kind: Kind, Body: body})
	if errors.Is(err, storage.ErrConflict) {
		return apierrors.Conflict(fmt.Sprintf("permission %q already exists", p.Name))
	}
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// Destroy removes a catalog entry. Existing grants on users are left in place.
func (c *Catalog) Destroy(ctx context.Context, name string) error {
	err := c.store.Destroy(ctx, docID(name))
	if errors.Is(err, storage.ErrNotFound) {
		return apierrors.NotFound(fmt.Sprintf("permission %q not found", name))
	}
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	return nil
}

// Seed creates every default entry that is missing
func (c *Catalog) Seed(ctx context.Context) error {
	for _, def := range Defaults {
		p := def
		err := c.Create(ctx, &p)
		if err != nil && !apierrors.Is(err, apierrors.CodeConflict) {
			return fmt.Errorf("failed to seed permission %q: %w", def.Name, err)
		}
	}
	return nil
}

func decode(doc *storage.Document) (*Permission, error) {
	var p Permission
	if err := json.Unmarshal(doc.Body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode permission %s: %w", doc.ID, err)
	}
	return &p, nil
}
