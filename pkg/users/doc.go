// Package users implements the User entity: signup, confirmation, password
// reset, profile updates, SSH keys, API tokens, third-party tokens and
// permission grants.
//
// # Overview
//
// A Service wraps a Repository (documents of kind "User" with ids
// "user/<username>") and an attachment store for keys. Every write goes
// through read, compute and a single revisioned update; concurrent writers
// lose with a Conflict error and are not retried.
//
// # Status
//
// Users move new -> pending -> active. Which state signup lands in depends
// on Policy:
//
//	RequireActivation                    -> new
//	RequireConfirmation (default true)   -> pending
//	neither                              -> active
//
// # Credentials
//
// Passwords are hashed with a per-user salt that is generated once and
// reused across password changes. API tokens are random values stored by
// label and accepted in place of the password.
//
// # Destroy
//
// Destroying a user walks every organization the user belongs to,
// destroying those where the user is the sole owner and removing the user
// from the rest. The walk stops on the first failure; earlier steps stay
// committed.
package users
