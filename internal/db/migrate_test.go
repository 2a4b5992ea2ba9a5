package db_test

import (
	"testing"
	"testing/fstest"

	"freelance-office/internal/db"
	"freelance-office/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverMigrations_SortsAndChecksums(t *testing.T) {
	fsys := fstest.MapFS{
		"002_indexes.sql": {Data: []byte("CREATE INDEX x ON t (a);")},
		"001_init.sql":    {Data: []byte("CREATE TABLE t (a int);")},
		"README.md":       {Data: []byte("ignored")},
	}
	got, err := db.DiscoverMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "001", got[0].Version)
	assert.Equal(t, "002_indexes.sql", got[1].Filename)
	assert.Len(t, got[0].Checksum, 64)
	assert.NotEqual(t, got[0].Checksum, got[1].Checksum)
}

func TestDiscoverMigrations_RejectsBadNames(t *testing.T) {
	_, err := db.DiscoverMigrations(fstest.MapFS{"init.sql": {Data: []byte("SELECT 1;")}})
	assert.ErrorContains(t, err, "invalid migration filename")

	_, err = db.DiscoverMigrations(fstest.MapFS{
		"001_init.sql":  {Data: []byte("SELECT 1;")},
		"001_other.sql": {Data: []byte("SELECT 2;")},
	})
	assert.ErrorContains(t, err, "duplicate migration version")
}

func TestDiscoverMigrations_EmbeddedSchema(t *testing.T) {
	got, err := db.DiscoverMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "001_init.sql", got[0].Filename)
}
