// Package storage selects the persistence backend for the ledger and run
// records. The concrete implementations live in the sqlite, postgres, and
// memory subpackages; callers depend only on the store interfaces.
package storage

import (
	"context"
	"fmt"

	"github.com/texapp/opinion-harvester/internal/config"
	"github.com/texapp/opinion-harvester/internal/store"
	"github.com/texapp/opinion-harvester/internal/storage/memory"
	"github.com/texapp/opinion-harvester/internal/storage/postgres"
	"github.com/texapp/opinion-harvester/internal/storage/sqlite"
)

// CloseFunc releases whatever resources the selected backend holds.
type CloseFunc func() error

// Open constructs the ledger and run stores for cfg.Storage.Backend.
func Open(ctx context.Context, cfg config.Config) (store.Ledger, store.Runs, CloseFunc, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, s.Close, nil
	case config.BackendPostgres:
		s, err := postgres.New(ctx, cfg.Storage.DSN, int32(cfg.Storage.MaxOpenConns))
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, func() error { s.Close(); return nil }, nil
	case config.BackendMemory:
		return memory.NewLedger(), memory.NewRuns(), func() error { return nil }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
