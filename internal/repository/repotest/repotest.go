// Package repotest opens throwaway SQLite-backed stores for tests.
package repotest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gshvpn_backend/internal/repository"
	"gshvpn_backend/pkg/database"
)

var seq atomic.Int64

// Open returns a migrated in-memory store private to t.
func Open(t testing.TB) (*repository.GormStore, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:repotest_%d?mode=memory&cache=shared&_foreign_keys=on", seq.Add(1))
	db, err := database.OpenSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	require.NoError(t, database.MigrateDatabase(db, zerolog.Nop(), database.Models...))
	return repository.NewGormStore(db), db
}
