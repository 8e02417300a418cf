// Package storagetest provides a behavioural test suite shared by every
// storage.Store and storage.AttachmentStore implementation.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/platinummonkey/httpusers/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewDoc builds a document with the given id, kind and index keys
func NewDoc(id, kind string, body any, keys map[string][]string) *storage.Document {
	data, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return &storage.Document{ID: id, Kind: kind, Body: data, Keys: keys}
}

// RunStoreTests exercises the storage.Store contract against a fresh store
// returned by newStore for each subtest.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) storage.Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		doc := NewDoc("user/charlie", "User", map[string]string{"username": "charlie"}, nil)
		require.NoError(t, s.Create(ctx, doc))
		assert.Equal(t, int64(1), doc.Rev)
		assert.False(t, doc.CreatedAt.IsZero())

		got, err := s.Get(ctx, "user/charlie")
		require.NoError(t, err)
		assert.Equal(t, "User", got.Kind)
		assert.Equal(t, int64(1), got.Rev)
		assert.JSONEq(t, `{"username":"charlie"}`, string(got.Body))
	})

	t.Run("create duplicate conflicts", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, NewDoc("user/a", "User", map[string]string{}, nil)))
		err := s.Create(ctx, NewDoc("user/a", "User", map[string]string{}, nil))
		assert.True(t, errors.Is(err, storage.ErrConflict), "got %v", err)
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "user/nobody")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("update bumps revision", func(t *testing.T) {
		s := newStore(t)
		doc := NewDoc("user/a", "User", map[string]string{"v": "1"}, nil)
		require.NoError(t, s.Create(ctx, doc))

		doc.Body = json.RawMessage(`{"v":"2"}`)
		require.NoError(t, s.Update(ctx, doc))
		assert.Equal(t, int64(2), doc.Rev)

		got, err := s.Get(ctx, "user/a")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Rev)
		assert.JSONEq(t, `{"v":"2"}`, string(got.Body))
	})

	t.Run("stale update conflicts", func(t *testing.T) {
		s := newStore(t)
		doc := NewDoc("user/a", "User", map[string]string{}, nil)
		require.NoError(t, s.Create(ctx, doc))

		first, err := s.Get(ctx, "user/a")
		require.NoError(t, err)
		second, err := s.Get(ctx, "user/a")
		require.NoError(t, err)

		require.NoError(t, s.Update(ctx, first))
		err = s.Update(ctx, second)
		assert.True(t, errors.Is(err, storage.ErrConflict), "got %v", err)
	})

	t.Run("update missing", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(ctx, NewDoc("user/ghost", "User", map[string]string{}, nil))
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("destroy", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, NewDoc("user/a", "User", map[string]string{}, nil)))
		require.NoError(t, s.Destroy(ctx, "user/a"))

		_, err := s.Get(ctx, "user/a")
		assert.True(t, errors.Is(err, storage.ErrNotFound))

		err = s.Destroy(ctx, "user/a")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("list filters by kind and orders by id", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, NewDoc("user/b", "User", map[string]string{}, nil)))
		require.NoError(t, s.Create(ctx, NewDoc("user/a", "User", map[string]string{}, nil)))
		require.NoError(t, s.Create(ctx, NewDoc("organization/a", "Organization", map[string]string{}, nil)))

		docs, err := s.List(ctx, "User")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "user/a", docs[0].ID)
		assert.Equal(t, "user/b", docs[1].ID)
	})

	t.Run("query by view key", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, NewDoc("organization/acme", "Organization", map[string]string{},
			map[string][]string{"member": {"charlie", "marak"}})))
		require.NoError(t, s.Create(ctx, NewDoc("organization/initech", "Organization", map[string]string{},
			map[string][]string{"member": {"marak"}})))

		docs, err := s.Query(ctx, "Organization", "member", "marak")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "organization/acme", docs[0].ID)

		docs, err = s.Query(ctx, "Organization", "member", "charlie")
		require.NoError(t, err)
		require.Len(t, docs, 1)

		docs, err = s.Query(ctx, "Organization", "member", "nobody")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("update replaces view keys", func(t *testing.T) {
		s := newStore(t)
		doc := NewDoc("organization/acme", "Organization", map[string]string{},
			map[string][]string{"member": {"charlie", "marak"}})
		require.NoError(t, s.Create(ctx, doc))

		doc.Keys = map[string][]string{"member": {"charlie"}}
		require.NoError(t, s.Update(ctx, doc))

		docs, err := s.Query(ctx, "Organization", "member", "marak")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("query prefix", func(t *testing.T) {
		s := newStore(t)
		for _, name := range []string{"charlie", "charles", "marak"} {
			require.NoError(t, s.Create(ctx, NewDoc("user/"+name, "User", map[string]string{},
				map[string][]string{"username": {name}})))
		}

		docs, err := s.QueryPrefix(ctx, "User", "username", "char")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "user/charles", docs[0].ID)
		assert.Equal(t, "user/charlie", docs[1].ID)
	})
}

// RunAttachmentTests exercises the storage.AttachmentStore contract
func RunAttachmentTests(t *testing.T, newStore func(t *testing.T) storage.AttachmentStore) {
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, "user/charlie", "keys/publicKey", []byte("ssh-rsa AAAA")))

		data, err := s.Get(ctx, "user/charlie", "keys/publicKey")
		require.NoError(t, err)
		assert.Equal(t, "ssh-rsa AAAA", string(data))
	})

	t.Run("save overwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, "user/charlie", "keys/publicKey", []byte("one")))
		require.NoError(t, s.Save(ctx, "user/charlie", "keys/publicKey", []byte("two")))

		data, err := s.Get(ctx, "user/charlie", "keys/publicKey")
		require.NoError(t, err)
		assert.Equal(t, "two", string(data))
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "user/charlie", "keys/none")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("list sorted per document", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, "user/charlie", "keys/work", []byte("w")))
		require.NoError(t, s.Save(ctx, "user/charlie", "keys/home", []byte("h")))
		require.NoError(t, s.Save(ctx, "user/marak", "keys/publicKey", []byte("m")))

		names, err := s.List(ctx, "user/charlie")
		require.NoError(t, err)
		assert.Equal(t, []string{"keys/home", "keys/work"}, names)

		names, err = s.List(ctx, "user/nobody")
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, "user/charlie", "keys/publicKey", []byte("k")))
		require.NoError(t, s.Delete(ctx, "user/charlie", "keys/publicKey"))

		_, err := s.Get(ctx, "user/charlie", "keys/publicKey")
		assert.True(t, errors.Is(err, storage.ErrNotFound))

		err = s.Delete(ctx, "user/charlie", "keys/publicKey")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
}
