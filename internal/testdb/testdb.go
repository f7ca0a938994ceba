// Package testdb provides a shared test database helper for fast,
// realistic testing against an in-memory SQLite database.
package testdb

import (
	"context"
	"testing"

	"github.com/pricegrid/pricegrid/infrastructure/persistence"
	"github.com/pricegrid/pricegrid/internal/database"
)

// New creates an in-memory SQLite database with all migrations applied.
// The database is automatically closed when the test finishes.
func New(t *testing.T) database.Database {
	t.Helper()
	db := NewPlain(t)
	if err := persistence.AutoMigrate(db); err != nil {
		t.Fatalf("testdb.New: auto migrate: %v", err)
	}
	return db
}

// NewPlain creates an in-memory SQLite database without running
// migrations, for tests that manage their own schema.
func NewPlain(t *testing.T) database.Database {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(ctx, "sqlite:///:memory:")
	if err != nil {
		t.Fatalf("testdb.NewPlain: open database: %v", err)
	}
	// A second connection to :memory: would open a second, empty
	// database, so the pool is pinned to one.
	if err := db.ConfigurePool(1, 1, 0); err != nil {
		t.Fatalf("testdb.NewPlain: configure pool: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
