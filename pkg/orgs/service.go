package orgs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/contextkeys"
	"github.com/platinummonkey/httpusers/pkg/events"
	"github.com/platinummonkey/httpusers/pkg/storage"
)

const (
	// Kind is the document kind of organizations
	Kind     = "Organization"
	idPrefix = "organization/"

	viewName   = "name"
	viewMember = "member"
	viewOwner  = "owner"
)

var validName = regexp.MustCompile(`^[@\w\-.]+$`)

// UserDirectory answers whether a user exists
type UserDirectory interface {
	Exists(ctx context.Context, username string) (bool, error)
}

// Service implements organization operations over a document store
type Service struct {
	store  storage.Store
	users  UserDirectory
	events events.Emitter
	logger *logrus.Logger
}

// NewService creates a new Service
func NewService(store storage.Store, users UserDirectory, emitter events.Emitter, logger *logrus.Logger) *Service {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{store: store, users: users, events: emitter, logger: logger}
}

// normalize lowercases a name
func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func docID(name string) string {
	return idPrefix + normalize(name)
}

// Available reports whether name is free for a new organization or user
func (s *Service) Available(ctx context.Context, name string) (bool, error) {
	name = normalize(name)
	_, err := s.store.Get(ctx, docID(name))
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return false, fmt.Errorf("failed to check organization: %w", err)
	}

	if s.users == nil {
		return true, nil
	}
	exists, err := s.users.Exists(ctx, name)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// Create makes actor the sole owner and member of a new organization
func (s *Service) Create(ctx context.Context, actor, name string, profile map[string]any) (*Organization, error) {
	name = normalize(name)
	if !validName.MatchString(name) {
		return nil, apierrors.Validation(fmt.Sprintf("invalid organization name %q", name))
	}
	if actor == "" {
		return nil, apierrors.Validation("an organization needs an owner")
	}

	available, err := s.Available(ctx, name)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, apierrors.Conflict(fmt.Sprintf("%s is not available", name))
	}

	org := &Organization{
		ID:      name,
		Name:    name,
		Owners:  []string{actor},
		Members: []string{actor},
		Profile: profile,
	}
	doc, err := encode(org)
	if err != nil {
		return nil, err
	}
	err = s.store.Create(ctx, doc)
	if errors.Is(err, storage.ErrConflict) {
		return nil, apierrors.Conflict(fmt.Sprintf("%s is not available", name))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	applyDoc(org, doc)

	s.emit(ctx, events.ActionCreate, org, actor)
	return org, nil
}

// Get returns the organization or a NotFound error
func (s *Service) Get(ctx context.Context, name string) (*Organization, error) {
	doc, err := s.store.Get(ctx, docID(name))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apierrors.NotFound(fmt.Sprintf("organization %s not found", normalize(name)))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return decode(doc)
}

// List returns every organization ordered by name
func (s *Service) List(ctx context.Context) ([]*Organization, error) {
	docs, err := s.store.List(ctx, Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return decodeAll(docs)
}

// ByMember returns the organizations username belongs to
func (s *Service) ByMember(ctx context.Context, username string) ([]*Organization, error) {
	return s.query(ctx, viewMember, username)
}

// ByOwner returns the organizations username owns
func (s *Service) ByOwner(ctx context.Context, username string) ([]*Organization, error) {
	return s.query(ctx, viewOwner, username)
}

// Members returns the member list of an organization
func (s *Service) Members(ctx context.Context, name string) ([]string, error) {
	org, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return org.Members, nil
}

// Update replaces the profile. Membership is changed through the member
// and owner operations only.
func (s *Service) Update(ctx context.Context, name string, profile map[string]any) (*Organization, error) {
	return s.mutate(ctx, name, events.ActionUpdate, func(org *Organization) error {
		org.Profile = profile
		return nil
	})
}

// Destroy removes the organization
func (s *Service) Destroy(ctx context.Context, name string) error {
	err := s.store.Destroy(ctx, docID(name))
	if errors.Is(err, storage.ErrNotFound) {
		return apierrors.NotFound(fmt.Sprintf("organization %s not found", normalize(name)))
	}
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	s.events.Emit(ctx, events.Event{
		Resource: events.ResourceOrganization,
		Action:   events.ActionDestroy,
		ID:       normalize(name),
		Actor:    contextkeys.GetUserID(ctx),
	})
	return nil
}

// AddMember adds an existing user as a member
func (s *Service) AddMember(ctx context.Context, name, username string) (*Organization, error) {
	username = normalize(username)
	if err := s.requireUser(ctx, username); err != nil {
		return nil, err
	}
	return s.mutate(ctx, name, events.ActionUpdate, func(org *Organization) error {
		return org.addMember(username)
	})
}

// RemoveMember removes a member, dropping ownership as well. Fails when
// username is the last owner.
func (s *Service) RemoveMember(ctx context.Context, name, username string) (*Organization, error) {
	username = normalize(username)
	return s.mutate(ctx, name, events.ActionUpdate, func(org *Organization) error {
		return org.removeMember(username)
	})
}

// AddOwner makes an existing user an owner, and a member if needed
func (s *Service) AddOwner(ctx context.Context, name, username string) (*Organization, error) {
	username = normalize(username)
	if err := s.requireUser(ctx, username); err != nil {
		return nil, err
	}
	return s.mutate(ctx, name, events.ActionUpdate, func(org *Organization) error {
		return org.addOwner(username)
	})
}

// RemoveOwner revokes ownership, keeping membership. Fails for the last
// owner.
func (s *Service) RemoveOwner(ctx context.Context, name, username string) (*Organization, error) {
	username = normalize(username)
	return s.mutate(ctx, name, events.ActionUpdate, func(org *Organization) error {
		return org.removeOwner(username)
	})
}

func (s *Service) requireUser(ctx context.Context, username string) error {
	if s.users == nil {
		return nil
	}
	exists, err := s.users.Exists(ctx, username)
	if err != nil {
		return err
	}
	if !exists {
		return apierrors.NotFound(fmt.Sprintf("%s not found", username))
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, name, action string, change func(*Organization) error) (*Organization, error) {
	org, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := change(org); err != nil {
		return nil, err
	}

	doc, err := encode(org)
	if err != nil {
		return nil, err
	}
	err = s.store.Update(ctx, doc)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, apierrors.NotFound(fmt.Sprintf("organization %s not found", org.Name))
	case errors.Is(err, storage.ErrConflict):
		return nil, apierrors.Conflict(fmt.Sprintf("organization %s was modified concurrently", org.Name))
	case err != nil:
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}
	applyDoc(org, doc)

	s.emit(ctx, action, org, contextkeys.GetUserID(ctx))
	return org, nil
}

func (s *Service) query(ctx context.Context, view, username string) ([]*Organization, error) {
	docs, err := s.store.Query(ctx, Kind, view, normalize(username))
	if err != nil {
		return nil, fmt.Errorf("failed to query organizations by %s: %w", view, err)
	}
	return decodeAll(docs)
}

func (s *Service) emit(ctx context.Context, action string, org *Organization, actor string) {
	s.events.Emit(ctx, events.Event{
		Resource: events.ResourceOrganization,
		Action:   action,
		ID:       org.ID,
		Actor:    actor,
		Data: map[string]any{
			"owners":  len(org.Owners),
			"members": len(org.Members),
		},
	})
}
