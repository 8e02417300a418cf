// Package orgs manages organizations: named groups of users with a set of
// owners and a superset of members.
//
// # Overview
//
// Organizations are documents of kind "Organization" with ids
// "organization/<name>", indexed by member and owner so a user's
// organizations can be found without a scan. Organization names and
// usernames share one namespace; Available checks both.
//
// # Invariants
//
//   - owners is never empty
//   - every owner is a member
//   - removing a member also drops their ownership, and fails if they were
//     the last owner
//
// Each mutation reads the organization, applies the change in memory and
// persists it with one revisioned update. A concurrent writer surfaces as a
// Conflict error.
//
// # Usage Example
//
//	svc := orgs.NewService(store, userRepo, bus)
//	org, err := svc.Create(ctx, "charlie", "nodejitsu", nil)
//	org, err = svc.AddMember(ctx, "nodejitsu", "marak")
//	err = svc.RemoveOwner(ctx, "nodejitsu", "charlie") // fails: sole owner
//
// Access control (who may call these) belongs to the HTTP layer; the
// service enforces only the membership invariants.
package orgs
