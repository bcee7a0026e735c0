package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("001_init.sql")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = parseMigrationVersion("init.sql")
	assert.Error(t, err)
	_, err = parseMigrationVersion("abc_init.sql")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	content, err := migrationsFS.ReadFile("migrations/" + entries[0].Name())
	require.NoError(t, err)
	sql := string(content)
	for _, table := range []string{"catalog_items", "tenant_configs", "sync_runs", "catalog_vectors"} {
		assert.True(t, strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table), table)
	}
	assert.Contains(t, sql, "UNIQUE (tenant_id, external_item_id)")
}
