package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/platinummonkey/httpusers/pkg/storage"
	"github.com/platinummonkey/httpusers/pkg/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storagetest.RunStoreTests(t, func(t *testing.T) storage.Store {
		return NewStore()
	})
}

func TestAttachments(t *testing.T) {
	storagetest.RunAttachmentTests(t, func(t *testing.T) storage.AttachmentStore {
		return NewAttachments()
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	doc := storagetest.NewDoc("user/a", "User", map[string]string{"v": "1"}, map[string][]string{"v": {"1"}})
	require.NoError(t, s.Create(ctx, doc))

	got, err := s.Get(ctx, "user/a")
	require.NoError(t, err)
	got.Body = json.RawMessage(`{"v":"mutated"}`)
	got.Keys["v"][0] = "mutated"

	again, err := s.Get(ctx, "user/a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"1"}`, string(again.Body))
	assert.Equal(t, []string{"1"}, again.Keys["v"])
}
