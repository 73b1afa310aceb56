// Package repotest opens throwaway sqlite databases for repository tests
package repotest

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/database"
)

func Logger() ectologger.Logger {
	return zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
}

// MigrationsDir is the sqlite migration folder at the repository root
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "db", "sqlite")
}

// NewSQLiteDB returns a migrated database in a file under t.TempDir
func NewSQLiteDB(t *testing.T) database.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "clover.db") + "?_busy_timeout=5000"
	db, err := database.Open(context.Background(), database.DriverSQLite, dsn, Logger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ms := database.NewMigrationService(Logger(), &database.MigrationConfig{MigrationFolderPath: MigrationsDir()})
	require.NoError(t, ms.MigrateDB(db))
	return db
}
