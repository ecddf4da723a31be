package cartstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/shop?sslmode=disable", migrateURL("postgres://u:p@db:5432/shop?sslmode=disable"))
	require.Equal(t, "pgx5://db/shop", migrateURL("postgresql://db/shop"))
	require.Equal(t, "pgx5://db/shop", migrateURL("pgx5://db/shop"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
