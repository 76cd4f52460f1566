package substrate

import (
	"fmt"
	"log"

	"github.com/loadgen/profiler/internal/substrate/memory"
	"github.com/loadgen/profiler/internal/substrate/sqlite"
)

// Config holds substrate configuration.
type Config struct {
	// Backend selects the substrate backend: "memory" or "sqlite".
	Backend string

	// SQLitePath is the database file for the sqlite backend. ":memory:"
	// keeps the database off disk.
	SQLitePath string
}

// DefaultConfig returns default substrate configuration.
func DefaultConfig() Config {
	return Config{
		Backend:    "memory",
		SQLitePath: "profiler.db",
	}
}

// New creates a substrate implementation based on configuration.
func New(cfg Config) (Substrate, error) {
	switch cfg.Backend {
	case "memory":
		log.Printf("Using in-memory substrate")
		return memory.New(), nil

	case "sqlite":
		log.Printf("Using SQLite substrate: %s", cfg.SQLitePath)
		store, err := sqlite.New(sqlite.DefaultConfig(cfg.SQLitePath))
		if err != nil {
			return nil, fmt.Errorf("creating SQLite substrate: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown substrate backend: %s (supported: memory, sqlite)", cfg.Backend)
	}
}
