package store

import (
	"fmt"

	"github.com/dukerupert/prospector/internal/database"
)

// Open returns the store selected by driver ("sqlite" or "memory") and a
// function that releases it.
func Open(driver, dbPath string) (Store, func() error, error) {
	switch driver {
	case "memory":
		return NewMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		db, err := database.Open(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLStore(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}
