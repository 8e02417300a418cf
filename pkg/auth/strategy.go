package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/permissions"
	"github.com/platinummonkey/httpusers/pkg/users"
)

const credentialsFailed = "Authorization failed with the provided credentials"

// Strategy authenticates Basic credentials against the user directory
type Strategy struct {
	dir Directory
}

// NewStrategy creates a new Strategy
func NewStrategy(dir Directory) *Strategy {
	return &Strategy{dir: dir}
}

// Authenticate resolves an Authorization header value. When current is
// already authenticated as the same username it is returned unchanged.
func (s *Strategy) Authenticate(ctx context.Context, header string, current *AuthenticatedUser) (*AuthenticatedUser, error) {
	if header == "" {
		return nil, apierrors.NotAuthorized("Authorization header is required")
	}

	username, password, err := ParseBasic(header)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Username() == username {
		return current, nil
	}

	u, err := s.dir.Get(ctx, username)
	if apierrors.IsNotFound(err) {
		return nil, apierrors.Forbidden(fmt.Sprintf("%s not found", username))
	}
	if err != nil {
		return nil, err
	}

	if s.dir.Policy().RequireActivation && u.Status != users.StatusActive {
		return nil, apierrors.NotAuthorized(fmt.Sprintf("User %s is not yet active", username))
	}

	if users.CheckPassword(s.dir.Hasher(), u, password) {
		return &AuthenticatedUser{User: u, AuthMethod: users.AuthMethod{Method: users.MethodPassword}}, nil
	}
	if label, ok := users.MatchToken(u.APITokens, password); ok {
		return &AuthenticatedUser{User: u, AuthMethod: users.AuthMethod{Method: users.MethodToken, ID: label}}, nil
	}
	return nil, apierrors.NotAuthorized(credentialsFailed)
}

// ParseBasic extracts the lowercased username and the password from a
// Basic Authorization header value
func ParseBasic(header string) (username, password string, err error) {
	scheme, encoded, _ := strings.Cut(strings.TrimSpace(header), " ")
	if scheme != "Basic" {
		return "", "", apierrors.Forbidden("Authorization scheme must be `Basic`")
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", apierrors.Forbidden("Both username and password are required")
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok || username == "" {
		return "", "", apierrors.Forbidden("Both username and password are required")
	}
	return strings.ToLower(username), password, nil
}

// BasicHeader builds an Authorization header value
func BasicHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// Authorize reports, as a Forbidden error, whether au lacks permission
// name scoped by value
func Authorize(dir Directory, au *AuthenticatedUser, name string, value permissions.Value) error {
	if au == nil || au.User == nil {
		return apierrors.Forbidden("You are not logged in")
	}
	if !dir.Can(au.User, name, value) {
		return apierrors.Forbidden("Missing permissions: " + name)
	}
	return nil
}
