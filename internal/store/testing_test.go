package store

import (
	"testing"

	"github.com/dukerupert/prospector/internal/database"
)

func setupSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db)
}

// stores returns every Store implementation so behavioural tests run against both.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"sqlite": setupSQLStore(t),
		"memory": NewMemoryStore(),
	}
}
