package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(DriverName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var got string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&got)
	if err == sql.ErrNoRows {
		return false
	}
	require.NoError(t, err)
	return true
}

// TestApplyMigrations verifies a fresh database reaches the current schema
func TestApplyMigrations(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, db))

	version, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	for _, table := range []string{"schema_version", "store_meta", "files", "entities", "relationships", "chunks"} {
		assert.True(t, tableExists(t, db, table), "table %s", table)
	}
}

// TestMigrationsIdempotent verifies re-applying records each version once
func TestMigrationsIdempotent(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, db))
	require.NoError(t, ApplyMigrations(ctx, db))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, len(AllMigrations), count)
}

// TestSemanticVersionComparison verifies versions compare semantically, not lexically
func TestSemanticVersionComparison(t *testing.T) {
	tests := []struct {
		name     string
		v1       string
		v2       string
		v1Higher bool
	}{
		{"major", "2.0.0", "1.9.9", true},
		{"minor not lexical", "1.10.0", "1.2.0", true},
		{"patch", "1.0.10", "1.0.2", true},
		{"equal", "1.0.0", "1.0.0", false},
		{"pre-release below release", "1.0.0-alpha", "1.0.0", false},
		{"pre-release ordering", "1.0.0-beta", "1.0.0-alpha", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openRawDB(t)
			ctx := context.Background()

			_, err := db.ExecContext(ctx, `CREATE TABLE schema_version (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`)
			require.NoError(t, err)
			_, err = db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", tt.v2)
			require.NoError(t, err)

			original := AllMigrations
			AllMigrations = []Migration{{Version: tt.v1, Up: "SELECT 1", Down: "SELECT 1"}}
			defer func() { AllMigrations = original }()

			require.NoError(t, ApplyMigrations(ctx, db))

			var count int
			require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count))
			if tt.v1Higher {
				assert.Equal(t, 2, count)
			} else {
				assert.Equal(t, 1, count)
			}
		})
	}
}

// TestMigrationErrorHandling verifies a corrupt version row is reported
func TestMigrationErrorHandling(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `CREATE TABLE schema_version (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES ('not-a-version')")
	require.NoError(t, err)

	err = ApplyMigrations(ctx, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid current schema version")
}

// TestRollbackMigration verifies rollback steps back one version at a time
func TestRollbackMigration(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, db))

	require.NoError(t, RollbackMigration(ctx, db))
	version, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	require.NoError(t, RollbackMigration(ctx, db))
	assert.False(t, tableExists(t, db, "entities"))
	assert.False(t, tableExists(t, db, "schema_version"))

	err = RollbackMigration(ctx, db)
	assert.Error(t, err)
}
