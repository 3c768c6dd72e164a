package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/taprounds/go/internal/config"
	"github.com/mcdev12/taprounds/go/internal/dbconfig"
	"github.com/mcdev12/taprounds/go/internal/rounds"
	"github.com/mcdev12/taprounds/go/internal/rounds/postgres"
	"github.com/mcdev12/taprounds/go/internal/rounds/sqlite"
)

// setupStore opens the configured rounds store. The returned func releases it.
func setupStore(ctx context.Context, cfg config.Config, clock clockwork.Clock) (rounds.RoundsRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath, clock, cfg.RetryPolicy())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite store")
		return store, func() { _ = store.Close() }, nil

	default:
		dbCfg := cfg.Database
		if err := migrate(ctx, dbCfg); err != nil {
			return nil, nil, err
		}

		pool, err := setupPool(ctx, dbCfg)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewRepository(pool, clock, cfg.RetryPolicy()), pool.Close, nil
	}
}

// migrate applies the schema over a short-lived database/sql connection.
func migrate(ctx context.Context, dbCfg dbconfig.Config) error {
	database, err := sql.Open("postgres", dbCfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	defer database.Close()

	if err := database.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := postgres.Migrate(ctx, database); err != nil {
		return err
	}

	log.Info().Str("target", dbCfg.Target()).Msg("database schema applied")
	return nil
}

func setupPool(ctx context.Context, dbCfg dbconfig.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = dbCfg.MaxConns
	poolCfg.MinConns = dbCfg.MinConns
	poolCfg.MaxConnLifetime = dbCfg.MaxConnLifetime()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("target", dbCfg.Target()).
		Int32("max_conns", dbCfg.MaxConns).
		Msg("connected to database")
	return pool, nil
}
