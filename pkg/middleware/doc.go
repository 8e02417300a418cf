// Package middleware provides HTTP route guards for authentication and
// authorization.
//
// # Overview
//
// Authenticator runs the Basic strategy and stores the resulting
// *auth.AuthenticatedUser in the request context. The guards below read
// it back with GetAuthUser.
//
//	authn := middleware.NewAuthenticator(strategy, dir, logger, metrics)
//
//	router.Handle("/auth", authn.RequireAuth(handler))
//	router.Handle("/users/{username}/confirm", authn.OptionalAuth(handler))
//
// # Guards
//
// NeedPermission: the caller holds a permission
//
//	authn.NeedPermission(permissions.ViewAllUsers)
//
// SelfOrPermission: the caller is the {username} in the path, or holds
// the permission
//
//	authn.SelfOrPermission("username", permissions.ModifyUsers)
//
// PasswordAuthForWrites: writes require the account password rather
// than an API token
//
// # Related Packages
//
//   - pkg/auth: Basic strategy and Authorize
//   - pkg/permissions: permission names
package middleware
