package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/mailrelay/config"
	"github.com/target/mailrelay/internal/bootstrap"
)

var errProcessLocalStore = errors.New("memory state store is process-local; set STORE_DRIVER to redis or postgres")

type connectInfraOptions struct {
	Logger    *slog.Logger
	Config    *config.AppConfig
	WantDB    bool
	WantRedis bool
}

// connectInfra connects only the backends the configured state store uses.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func connectInfra(logger *slog.Logger, cfg *config.AppConfig) (*sql.DB, redis.UniversalClient, error) {
	return connectInfraWithOptions(&connectInfraOptions{
		Logger:    logger,
		Config:    cfg,
		WantDB:    cfg.NeedsPostgres(),
		WantRedis: cfg.NeedsRedis(),
	})
}

// connectInfraWithOptions allows commands to control which dependencies are created.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func connectInfraWithOptions(opts *connectInfraOptions) (*sql.DB, redis.UniversalClient, error) {
	var (
		db          *sql.DB
		err         error
		redisClient redis.UniversalClient
	)

	if opts.WantDB {
		db, err = bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: opts.Config.Postgres, Logger: opts.Logger})
		if err != nil {
			return nil, nil, fmt.Errorf("connect db: %w", err)
		}
	}

	if opts.WantRedis {
		redisClient, err = bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: opts.Config.Redis, Logger: opts.Logger})
		if err != nil {
			if db != nil {
				if closeErr := db.Close(); closeErr != nil {
					err = errors.Join(err, fmt.Errorf("close db: %w", closeErr))
				}
			}
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	return db, redisClient, nil
}

// openStateStore connects the configured backend and returns the dispatch state store with a
// function releasing its connections.
func openStateStore(cmdCtx *commandContext) (bootstrap.StateStore, func() error, error) {
	cfg := &cmdCtx.Config
	if cfg.Store.Driver == config.StoreDriverMemory {
		return nil, nil, errProcessLocalStore
	}

	db, redisClient, err := connectInfra(cmdCtx.Logger, cfg)
	if err != nil {
		return nil, nil, err
	}
	closer := func() error { return closeInfra(db, redisClient) }

	store, err := bootstrap.NewStateStore(bootstrap.StateStoreDeps{
		Config:      cfg.Store,
		DB:          db,
		RedisClient: redisClient,
	})
	if err != nil {
		return nil, nil, errors.Join(err, closer())
	}
	return store, closer, nil
}

func closeInfra(db *sql.DB, redisClient redis.UniversalClient) error {
	var closeErr error
	if db != nil {
		if err := db.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}
