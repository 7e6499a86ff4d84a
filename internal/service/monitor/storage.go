package monitor

import (
	"context"
	"fmt"

	"github.com/oshokin/camwatch/internal/config"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/repository/sqlite"
	"github.com/oshokin/camwatch/internal/repository/state"
	"github.com/oshokin/camwatch/internal/repository/subscriber"
)

// storage bundles the repositories of the selected backend.
type storage struct {
	state    state.Repository
	registry subscriber.Registry
	close    func() error
}

// openStorage opens the state store and the subscriber registry.
// A corrupt subscribers file is moved aside and replaced by an empty registry.
func openStorage(ctx context.Context, cfg config.StorageConfig) (*storage, error) {
	switch cfg.Backend {
	case config.StorageBackendSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}

		logger.InfoKV(ctx, "Using SQLite storage", "path", db.Path())

		return &storage{
			state:    sqlite.NewStateRepository(db),
			registry: sqlite.NewRegistry(db),
			close:    db.Close,
		}, nil
	default:
		registry, err := subscriber.OpenOrEmpty(cfg.SubscribersFile)
		if registry == nil {
			return nil, fmt.Errorf("open subscriber registry: %w", err)
		}

		if err != nil {
			logger.ErrorKV(ctx, "Subscriber registry is unusable, starting with no subscribers", "error", err)
		}

		logger.InfoKV(ctx, "Using file storage",
			"state_file", cfg.StateFile,
			"subscribers_file", cfg.SubscribersFile,
		)

		return &storage{
			state:    state.NewFileRepository(cfg.StateFile),
			registry: registry,
			close:    func() error { return nil },
		}, nil
	}
}
