package users

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
	// Kind is the document kind of users
	Kind     = "User"
	idPrefix = "user/"
)

// View names indexed on every user document
const (
	ViewUsername   = "username"
	ViewEmail      = "email"
	ViewInviteCode = "inviteCode"
	ViewCtime      = "ctime"
)

// DocID returns the document id of username
func DocID(username string) string {
	return idPrefix + Normalize(username)
}

// Repository maps users onto the document store
type Repository struct {
	store storage.Store
}

// NewRepository returns a repository over store
func NewRepository(store storage.Store) *Repository {
	return &Repository{store: store}
}

// Get returns the user or a NotFound error
func (r *Repository) Get(ctx context.Context, username string) (*User, error) {
	doc, err := r.store.Get(ctx, DocID(username))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apierrors.NotFound(fmt.Sprintf("%s not found", Normalize(username)))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return decode(doc)
}

// Exists reports whether a user with that name exists
func (r *Repository) Exists(ctx context.Context, username string) (bool, error) {
	_, err := r.store.Get(ctx, DocID(username))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get user: %w", err)
	}
	return true, nil
}

// Create stores a new user. Conflict when the name is taken.
func (r *Repository) Create(ctx context.Context, u *User) error {
	doc, err := encode(u)
	if err != nil {
		return err
	}
	err = r.store.Create(ctx, doc)
	if errors.Is(err, storage.ErrConflict) {
		return apierrors.Conflict(fmt.Sprintf("user %s already exists", u.Username))
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.rev = doc.Rev
	u.CreatedAt = doc.CreatedAt
	u.UpdatedAt = doc.UpdatedAt
	return nil
}

// Update writes u at the revision it was read at
func (r *Repository) Update(ctx context.Context, u *User) error {
	doc, err := encode(u)
	if err != nil {
		return err
	}
	err = r.store.Update(ctx, doc)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apierrors.NotFound(fmt.Sprintf("%s not found", u.Username))
	case errors.Is(err, storage.ErrConflict):
		return apierrors.Conflict(fmt.Sprintf("user %s was modified concurrently", u.Username))
	case err != nil:
		return fmt.Errorf("failed to update user: %w", err)
	}
	u.rev = doc.Rev
	u.UpdatedAt = doc.UpdatedAt
	return nil
}

// Destroy removes the user document
func (r *Repository) Destroy(ctx context.Context, username string) error {
	err := r.store.Destroy(ctx, DocID(username))
	if errors.Is(err, storage.ErrNotFound) {
		return apierrors.NotFound(fmt.Sprintf("%s not found", Normalize(username)))
	}
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// All returns every user ordered by id
func (r *Repository) All(ctx context.Context) ([]*User, error) {
	docs, err := r.store.List(ctx, Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return decodeAll(docs)
}

// ByEmail returns users registered with email
func (r *Repository) ByEmail(ctx context.Context, email string) ([]*User, error) {
	return r.query(ctx, ViewEmail, strings.ToLower(strings.TrimSpace(email)))
}

// ByInviteCode returns users holding code
func (r *Repository) ByInviteCode(ctx context.Context, code string) ([]*User, error) {
	if code == "" {
		return nil, nil
	}
	return r.query(ctx, ViewInviteCode, code)
}

// ByUsernamePrefix returns users whose username starts with prefix
func (r *Repository) ByUsernamePrefix(ctx context.Context, prefix string) ([]*User, error) {
	docs, err := r.store.QueryPrefix(ctx, Kind, ViewUsername, Normalize(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return decodeAll(docs)
}

func (r *Repository) query(ctx context.Context, view, key string) ([]*User, error) {
	docs, err := r.store.Query(ctx, Kind, view, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query users by %s: %w", view, err)
	}
	return decodeAll(docs)
}

func encode(u *User) (*storage.Document, error) {
	body, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}
	keys := map[string][]string{
		ViewUsername: {u.Username},
		ViewEmail:    {strings.ToLower(u.Email)},
	}
	if u.InviteCode != "" {
		keys[ViewInviteCode] = []string{u.InviteCode}
	}
	if !u.CreatedAt.IsZero() {
		keys[ViewCtime] = []string{u.CreatedAt.UTC().Format(time.RFC3339Nano)}
	}
	return &storage.Document{
		ID:   DocID(u.Username),
		Kind: Kind,
		Rev:  u.rev,
		Body: body,
		Keys: keys,
	}, nil
}

func decode(doc *storage.Document) (*User, error) {
	var u User
	if err := json.Unmarshal(doc.Body, &u); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", doc.ID, err)
	}
	u.rev = doc.Rev
	if u.CreatedAt.IsZero() {
		u.CreatedAt = doc.CreatedAt
	}
	u.UpdatedAt = doc.UpdatedAt
	return &u, nil
}

func decodeAll(docs []*storage.Document) ([]*User, error) {
	out := make([]*User, 0, len(docs))
	for _, doc := range docs {
		u, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
