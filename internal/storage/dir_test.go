package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/securexfer/internal/common"
	"github.com/dmitrijs2005/securexfer/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirBackend_Lifecycle(t *testing.T) {
	ctx := context.Background()
	b, err := NewDirBackend(filepath.Join(t.TempDir(), "store"), logging.Nop())
	require.NoError(t, err)

	records, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	src := filepath.Join(t.TempDir(), "report.pdf.enc")
	require.NoError(t, os.WriteFile(src, []byte("ciphertext"), 0o600))

	id, err := b.Upload(ctx, src, "report.pdf.enc")
	require.NoError(t, err)
	assert.NoError(t, ValidateKey(id))

	records, err = b.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, "report.pdf.enc", records[0].Name)
	assert.Equal(t, "application/pdf", records[0].MimeType)
	assert.Equal(t, int64(len("ciphertext")), records[0].Size)

	dest := filepath.Join(t.TempDir(), "fetched")
	name, err := b.Download(ctx, id, dest)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf.enc", name)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "ciphertext", string(got))

	ok, err := b.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = b.Download(ctx, id, dest)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDirBackend_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	b, err := NewDirBackend(t.TempDir(), logging.Nop())
	require.NoError(t, err)

	_, err = b.Download(ctx, "files/../../outside", filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, common.ErrNotFound)

	ok, err := b.Delete(ctx, "../outside")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirBackend_UploadMissingSource(t *testing.T) {
	b, err := NewDirBackend(t.TempDir(), logging.Nop())
	require.NoError(t, err)

	_, err = b.Upload(context.Background(), filepath.Join(t.TempDir(), "nope"), "nope")
	assert.ErrorIs(t, err, common.ErrFilesystem)
}
