// Package testing provides database helpers shared by the riskengine tests.
package testing

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aristath/riskengine/internal/database"
)

// NewTestDB opens a migrated in-memory database that is closed when the test ends.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	db, err := database.NewMemory(name)
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})
	return db
}

// CreateTempDBFile reserves a temporary file path for a database.
// The file is removed when the test ends.
func CreateTempDBFile(t *testing.T, name string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), fmt.Sprintf("%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	return tmpPath
}

// NewTestDBFromFile opens a migrated file-backed database at a temporary path.
// Returns the database and its path so a test can reopen it.
func NewTestDBFromFile(t *testing.T, name string) (*database.DB, string) {
	t.Helper()

	path := CreateTempDBFile(t, name)
	db := OpenTestDB(t, path, name)
	return db, path
}

// OpenTestDB opens and migrates a file database at path, closing it on cleanup.
func OpenTestDB(t *testing.T, path, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to open test database %s at %s: %v", name, path, err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
