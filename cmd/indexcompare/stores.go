package main

import (
	"context"
	"fmt"
	"os"

	"index-compare/internal/config"
	"index-compare/internal/storage"
	chstore "index-compare/internal/storage/clickhouse"
	"index-compare/internal/storage/file"
	"index-compare/internal/storage/memory"
	"index-compare/internal/storage/migrations"
	pgstore "index-compare/internal/storage/postgres"
)

// appStores holds the five stores behind one backend selection.
type appStores struct {
	closes      storage.DailyCloseStore
	ratios      storage.RatioPointStore
	indicators  storage.IndicatorStore
	conclusions storage.ConclusionStore
	runs        storage.RunStore
}

// createStores builds the store set for the configured backend and returns a
// cleanup releasing any connections. --use-memory overrides the config.
func createStores(ctx context.Context, cfg config.Config) (*appStores, func(), error) {
	backend := cfg.Storage.Backend
	if useMemory {
		backend = "memory"
	}

	switch backend {
	case "memory":
		stores := &appStores{
			closes:      memory.NewDailyCloseStore(),
			ratios:      memory.NewRatioPointStore(),
			indicators:  memory.NewIndicatorStore(),
			conclusions: memory.NewConclusionStore(),
			runs:        memory.NewRunStore(),
		}
		return stores, func() {}, nil

	case "file":
		dataDir := cfg.Output.DataDir
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		stores := &appStores{
			closes:      file.NewDailyCloseStore(dataDir),
			ratios:      file.NewRatioPointStore(dataDir),
			indicators:  file.NewIndicatorStore(dataDir),
			conclusions: file.NewConclusionStore(dataDir),
			runs:        file.NewRunStore(dataDir),
		}
		return stores, func() {}, nil

	case "postgres":
		return createPostgresStores(ctx, cfg)

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// createPostgresStores connects to PostgreSQL, applies migrations and builds
// the normalized stores. Ratio points are analytics rows: they go to
// ClickHouse when a DSN is configured and to the file store otherwise.
func createPostgresStores(ctx context.Context, cfg config.Config) (*appStores, func(), error) {
	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
	}

	stores := &appStores{
		closes:      pgstore.NewDailyCloseStore(pool),
		indicators:  pgstore.NewIndicatorStore(pool),
		conclusions: pgstore.NewConclusionStore(pool),
		runs:        pgstore.NewRunStore(pool),
	}

	if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("apply clickhouse migrations: %w", err)
		}
		stores.ratios = chstore.NewRatioPointStore(conn)
		cleanup := func() {
			conn.Close()
			pool.Close()
		}
		return stores, cleanup, nil
	}

	if err := os.MkdirAll(cfg.Output.DataDir, 0o755); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	stores.ratios = file.NewRatioPointStore(cfg.Output.DataDir)
	return stores, func() { pool.Close() }, nil
}
