package testutil

import (
	"testing"

	"otpkeep/internal/database"
)

// NewTestDatabase creates an in-memory SQLite database with migrations
// applied. It is closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db := database.NewSQLiteDatabaseFromDB(sqlDB)
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}
