package testdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/aldhinn/Fintel/internal/adapters/database"
)

// TestDB wraps a migrated Postgres database whose tables are truncated after each test
type TestDB struct {
	DB *database.DB
}

// Setup connects to TEST_DATABASE_URL, applies migrations and registers cleanup.
// The test is skipped when the variable is unset.
func Setup(t *testing.T) *TestDB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database test")
	}

	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := database.RunMigrations(conn.DB, migrationsPath(t)); err != nil {
		conn.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	tdb := &TestDB{DB: database.Wrap(conn)}
	tdb.truncate(t)

	t.Cleanup(func() {
		tdb.Teardown(t)
	})

	return tdb
}

// Teardown truncates all tables and closes the connection
func (tdb *TestDB) Teardown(t *testing.T) {
	t.Helper()

	tdb.truncate(t)
	if err := tdb.DB.Close(); err != nil {
		t.Logf("warning: failed to close database: %v", err)
	}
}

func (tdb *TestDB) truncate(t *testing.T) {
	t.Helper()

	_, err := tdb.DB.DB().Exec(`TRUNCATE predictions, forecast_models, price_points, assets CASCADE`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

// Exec executes SQL against the test database
func (tdb *TestDB) Exec(t *testing.T, query string, args ...interface{}) {
	t.Helper()

	if _, err := tdb.DB.DB().Exec(query, args...); err != nil {
		t.Fatalf("failed to execute query: %v\nQuery: %s", err, query)
	}
}

// CountRows returns COUNT(*) for a table with an optional WHERE clause
func (tdb *TestDB) CountRows(t *testing.T, table, where string, args ...interface{}) int {
	t.Helper()

	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}

	var n int
	if err := tdb.DB.DB().Get(&n, query, args...); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

// migrationsPath walks up from the working directory to the module root
func migrationsPath(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "migrations")
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("module root not found")
		}
		dir = parent
	}
}
