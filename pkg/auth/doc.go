// Package auth authenticates requests with HTTP Basic credentials and
// authorizes them against permission grants.
//
// # Overview
//
// A Strategy resolves "Authorization: Basic base64(user:pass)" to an
// AuthenticatedUser: the stored user plus how they proved who they are.
// The password part may be the account password or any of the user's API
// tokens.
//
//	au, err := strategy.Authenticate(ctx, r.Header.Get("Authorization"), nil)
//	// au.AuthMethod.Method == "username/password" or "token"
//
// # Errors
//
//	no header                        401 Authorization header is required
//	scheme other than Basic          403
//	undecodable credentials          403
//	unknown user                     403 <username> not found
//	inactive (activation required)   401 User <username> is not yet active
//	wrong password and no token      401 Authorization failed with the provided credentials
//
// Failures never reveal whether the username or the password was wrong.
//
// # Authorization
//
// Authorize checks one permission for an authenticated user:
//
//	if err := auth.Authorize(dir, au, permissions.ModifyUsers, permissions.NoValue); err != nil {
//		// 403 Missing permissions: modify users
//	}
package auth
