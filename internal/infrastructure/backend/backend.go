// Package backend opens the configured store and hands back the repositories
// every process wires into its usecases.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fundacion-cms/content-scheduler/config"
	"github.com/fundacion-cms/content-scheduler/internal/health"
	"github.com/fundacion-cms/content-scheduler/internal/infrastructure/postgres"
	"github.com/fundacion-cms/content-scheduler/internal/infrastructure/sqlite"
	"github.com/fundacion-cms/content-scheduler/internal/repository"
)

type Stores struct {
	Schedules repository.ScheduleRepository
	Contents  repository.ContentRepository
	Seeder    repository.ContentSeeder
	Pinger    health.Pinger
	// Name labels the store in health checks and logs.
	Name  string
	close func()
}

func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open connects to the store selected by cfg.StoreDriver and brings its schema up to date.
func Open(ctx context.Context, cfg config.Store, logger *slog.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		return OpenSQLite(cfg.SQLitePath)

	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		contents := postgres.NewContentRepository(pool)
		return &Stores{
			Schedules: postgres.NewScheduleRepository(pool, logger),
			Contents:  contents,
			Seeder:    contents,
			Pinger:    pool,
			Name:      config.StorePostgres,
			close:     pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// OpenSQLite is also used directly by tests with sqlite.MemoryPath.
func OpenSQLite(path string) (*Stores, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	contents := sqlite.NewContentRepository(db)
	return &Stores{
		Schedules: sqlite.NewScheduleRepository(db),
		Contents:  contents,
		Seeder:    contents,
		Pinger:    db,
		Name:      config.StoreSQLite,
		close:     func() { _ = db.Close() },
	}, nil
}
