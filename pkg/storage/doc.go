// Package storage defines the persistence contracts used by the user,
// organization and permission services.
//
// # Overview
//
// Entities are persisted as JSON documents. Every document carries a kind
// (User, Organization, Permission), a monotonically increasing revision used
// for optimistic concurrency, and a set of secondary index keys computed by
// the owning repository:
//
//	doc := &storage.Document{
//		ID:   "user/charlie",
//		Kind: "User",
//		Body: body,
//		Keys: map[string][]string{"email": {"foo@bar.com"}},
//	}
//
// Stores never interpret Body. Views are plain (kind, view, key) lookups over
// Keys, which keeps every backend interchangeable.
//
// # Backends
//
//   - memory: in-process maps, used in tests and single-node development
//   - sqlstore: PostgreSQL (lib/pq or pgx) and SQLite
//   - cache: read-through decorator with an LRU L1 and Redis L2
//
// Binary attachments (SSH keys) live behind AttachmentStore, implemented by
// sqlstore, filesystem and s3.
//
// # Concurrency
//
// Update succeeds only when the supplied Rev matches the stored revision.
// A stale write fails with ErrConflict and is never retried by the store.
package storage
