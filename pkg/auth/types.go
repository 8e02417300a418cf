package auth

import (
	"context"

	"github.com/platinummonkey/httpusers/pkg/permissions"
	"github.com/platinummonkey/httpusers/pkg/users"
)

// AuthenticatedUser is the user attached to an authenticated request
type AuthenticatedUser struct {
	User       *users.User
	AuthMethod users.AuthMethod
}

// Username returns the authenticated username, or "" for nil
func (au *AuthenticatedUser) Username() string {
	if au == nil || au.User == nil {
		return ""
	}
	return au.User.Username
}

// PasswordAuth reports whether the request used the account password
func (au *AuthenticatedUser) PasswordAuth() bool {
	return au != nil && au.AuthMethod.IsPassword()
}

// Restricted returns the user as it may be shown to this caller
func (au *AuthenticatedUser) Restricted() users.View {
	return users.Restricted(au.User, au.AuthMethod)
}

// Directory is what authentication needs from the user service
type Directory interface {
	Get(ctx context.Context, username string) (*users.User, error)
	Hasher() users.Hasher
	Policy() users.Policy
	Can(u *users.User, name string, value permissions.Value) bool
}

var _ Directory = (*users.Service)(nil)
