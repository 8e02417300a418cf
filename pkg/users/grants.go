package users

import (
	"context"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/events"
	"github.com/platinummonkey/httpusers/pkg/permissions"
)

// Can reports whether u holds permission name, optionally scoped by value
func (s *Service) Can(u *User, name string, value permissions.Value) bool {
	if u == nil {
		return false
	}
	return s.evaluator.Can(u.Permissions, name, value)
}

// Permissions returns the user's grants
func (s *Service) Permissions(ctx context.Context, username string) (permissions.Grants, error) {
	u, err := s.repo.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if u.Permissions == nil {
		return permissions.Grants{}, nil
	}
	return u.Permissions, nil
}

// Allow grants the catalog permission name to username
func (s *Service) Allow(ctx context.Context, username, name string, value permissions.Value) (permissions.Grants, error) {
	return s.changeGrant(ctx, username, name, value, permissions.Allow)
}

// Disallow revokes the catalog permission name, or one of its patterns
func (s *Service) Disallow(ctx context.Context, username, name string, value permissions.Value) (permissions.Grants, error) {
	return s.changeGrant(ctx, username, name, value, permissions.Disallow)
}

type grantChange func(permissions.Grants, *permissions.Permission, permissions.Value) (permissions.Grants, error)

func (s *Service) changeGrant(ctx context.Context, username, name string, value permissions.Value, change grantChange) (permissions.Grants, error) {
	if s.catalog == nil {
		return nil, apierrors.Internal("permission catalog is not configured")
	}
	p, err := s.catalog.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	u, err := s.mutate(ctx, username, events.ActionUpdate, func(u *User) error {
		grants, err := change(u.Permissions, p, value)
		if err != nil {
			return err
		}
		u.Permissions = grants
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u.Permissions, nil
}
