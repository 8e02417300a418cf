package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/httpusers/pkg/storage"
	"github.com/platinummonkey/httpusers/pkg/storage/storagetest"
)

func TestAttachments_Contract(t *testing.T) {
	storagetest.RunAttachmentTests(t, func(t *testing.T) storage.AttachmentStore {
		a, err := New(t.TempDir())
		require.NoError(t, err)
		return a
	})
}

func TestAttachments_Layout(t *testing.T) {
	root := t.TempDir()
	a, err := New(root)
	require.NoError(t, err)

	require.NoError(t, a.Save(context.Background(), "user/charlie", "keys/publicKey", []byte("k")))

	data, err := os.ReadFile(filepath.Join(root, "user%2Fcharlie", "keys%2FpublicKey"))
	require.NoError(t, err)
	assert.Equal(t, "k", string(data))
}

func TestAttachments_RejectsTraversal(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, a.Save(ctx, "..", "x", []byte("k")))
	assert.Error(t, a.Save(ctx, "user/a", "..", []byte("k")))
	_, err = a.Get(ctx, "user/a", ".")
	assert.Error(t, err)
}

func TestNew_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "attachments")
	_, err := New(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
