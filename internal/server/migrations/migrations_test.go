package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	names, err := fs.Glob(Migrations, "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"00001_create_files.sql", "00002_create_transfers.sql"}, names)

	for _, n := range names {
		b, err := fs.ReadFile(Migrations, n)
		require.NoError(t, err)
		assert.Contains(t, string(b), "-- +goose Up")
		assert.Contains(t, string(b), "-- +goose Down")
	}
}
