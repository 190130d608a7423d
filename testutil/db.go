package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/onnwee/tank-queue/db"
)

// OpenDB returns a migrated database: Postgres when TEST_PG_DSN is set, otherwise a
// private in-memory SQLite. Postgres rows written by earlier tests are removed.
func OpenDB(t *testing.T) *db.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		dsn = "sqlite::memory:"
	}
	database, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	if err := db.RunMigrations(context.Background(), database); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	if database.Dialect == db.Postgres {
		for _, q := range []string{`DELETE FROM kv`, `DELETE FROM oauth_tokens`} {
			if _, err := database.Exec(q); err != nil {
				t.Fatalf("cleanup: %v", err)
			}
		}
	}
	return database
}
