package storage

import (
	"fmt"
	"strings"
)

const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

// Kinds lists the backend names NewStore understands.
func Kinds() []string {
	return []string{KindMemory, KindSQLite}
}

// NewStore opens the named backend. sqlitePath is only read by the sqlite
// backend, which exists only in builds tagged sqlite.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported store backend %q (valid: %s)", kind, strings.Join(Kinds(), ", "))
	}
}

// CloseIfSupported releases backends that hold resources; the memory store
// has none.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
