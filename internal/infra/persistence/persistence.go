// Package persistence selects a projection store backend from configuration.
package persistence

import (
	"context"
	"fmt"

	"aquacast/internal/config"
	"aquacast/internal/infra/persistence/memory"
	"aquacast/internal/infra/persistence/postgres"
	"aquacast/internal/infra/persistence/sqlite"
	"aquacast/pkg/domain"
)

// Supported storage driver names.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenStore constructs the projection store named by cfg.StorageDriver.
func OpenStore(ctx context.Context, cfg config.Config) (domain.ProjectionStore, error) {
	switch cfg.StorageDriver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
