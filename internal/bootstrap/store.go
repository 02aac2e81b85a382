package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/target/mailrelay/config"
	"github.com/target/mailrelay/internal/core"
	"github.com/target/mailrelay/internal/data"
)

// StateStore is a core.StateStore that can also drop the persisted document.
type StateStore interface {
	core.StateStore
	Clear(ctx context.Context) error
}

// StateStoreDeps holds the connections a state store driver may need.
type StateStoreDeps struct {
	Config      config.StoreConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
}

// NewStateStore builds the dispatch state store selected by STORE_DRIVER.
//
//nolint:ireturn // the concrete store depends on the configured driver.
func NewStateStore(deps StateStoreDeps) (StateStore, error) {
	switch deps.Config.Driver {
	case config.StoreDriverRedis, "":
		if deps.RedisClient == nil {
			return nil, errors.New("redis state store requires a redis client")
		}
		return data.NewStateRepo(data.StateRepoOptions{
			Cache: data.NewRedisCacheRepo(deps.RedisClient),
			Key:   deps.Config.Key,
		})
	case config.StoreDriverPostgres:
		if deps.DB == nil {
			return nil, errors.New("postgres state store requires a database connection")
		}
		return data.NewPGStateRepo(deps.DB, deps.Config.Key), nil
	case config.StoreDriverMemory:
		return data.NewStateRepo(data.StateRepoOptions{
			Cache: data.NewMemoryCacheRepo(),
			Key:   deps.Config.Key,
		})
	default:
		return nil, fmt.Errorf("%w: %q", data.ErrUnknownStoreDriver, deps.Config.Driver)
	}
}
