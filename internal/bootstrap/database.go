package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mailrelay/config"
	"github.com/target/mailrelay/internal/migrate"
)

const (
	connectTimeout = 5 * time.Second
	// The state store touches a single row; a small pool is plenty.
	dbMaxOpenConns    = 5
	dbMaxIdleConns    = 2
	dbConnMaxLifetime = 5 * time.Minute
)

// DatabaseConfig contains configuration for the state store connections.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// ConnectDB opens and pings the Postgres state store database.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", postgresDSN(cfg.DBConfig))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(dbMaxOpenConns)
	db.SetMaxIdleConns(dbMaxIdleConns)
	db.SetConnMaxLifetime(dbConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping database: %w", err), db.Close())
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database connected",
			"host", cfg.DBConfig.Host,
			"port", cfg.DBConfig.Port,
			"database", cfg.DBConfig.Name,
		)
	}
	return db, nil
}

// postgresDSN builds a URL DSN so credentials with reserved characters survive.
func postgresDSN(cfg config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectRedis connects to a standalone, sentinel or cluster Redis deployment.
//
//nolint:ireturn // redis.UniversalClient lets the topology be chosen at runtime.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	target, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	client := target.client()
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis: %w", err), client.Close())
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "addr", target.desc)
	}
	return client, nil
}

// redisTarget is a resolved Redis topology. desc is credential-free and safe to log.
type redisTarget struct {
	opts    *redis.UniversalOptions
	cluster bool
	desc    string
}

//nolint:ireturn // redis.UniversalClient lets the topology be chosen at runtime.
func (t redisTarget) client() redis.UniversalClient {
	if t.cluster {
		return redis.NewClusterClient(t.opts.Cluster())
	}
	// MasterName selects the failover client.
	return redis.NewUniversalClient(t.opts)
}

func redisOptions(cfg config.RedisConfig) (redisTarget, error) {
	switch {
	case cfg.UseCluster:
		return clusterOptions(cfg)
	case cfg.UseSentinel:
		nodes := normalizeAddrs(cfg.SentinelNodes)
		if len(nodes) == 0 {
			return redisTarget{}, errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		return redisTarget{
			opts: &redis.UniversalOptions{
				Addrs:            nodes,
				MasterName:       cfg.SentinelMasterName,
				Password:         cfg.Password,
				SentinelPassword: cfg.SentinelPassword,
				DB:               cfg.DB,
			},
			desc: "sentinel:" + cfg.SentinelMasterName,
		}, nil
	default:
		return directOptions(cfg)
	}
}

func clusterOptions(cfg config.RedisConfig) (redisTarget, error) {
	opts := &redis.UniversalOptions{
		Addrs:    normalizeAddrs(cfg.ClusterNodes),
		Password: cfg.Password,
	}
	if len(opts.Addrs) == 0 {
		// Fall back to the seed node in REDIS_URI.
		direct, err := directOptions(cfg)
		if err != nil {
			return redisTarget{}, fmt.Errorf("redis cluster configuration requires at least one address: %w", err)
		}
		opts.Addrs = direct.opts.Addrs
		opts.Username = direct.opts.Username
		opts.Password = direct.opts.Password
		opts.TLSConfig = direct.opts.TLSConfig
	}
	return redisTarget{opts: opts, cluster: true, desc: "cluster:" + strings.Join(opts.Addrs, ",")}, nil
}

func directOptions(cfg config.RedisConfig) (redisTarget, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return redisTarget{}, errors.New("redis direct configuration requires a URI")
	}
	if !isRedisURL(uri) {
		return redisTarget{
			opts: &redis.UniversalOptions{
				Addrs:    []string{uri},
				Password: cfg.Password,
				DB:       cfg.DB,
			},
			desc: uri,
		}, nil
	}

	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return redisTarget{}, fmt.Errorf("parse redis url: %w", err)
	}
	password := parsed.Password
	if password == "" {
		password = cfg.Password
	}
	return redisTarget{
		opts: &redis.UniversalOptions{
			Addrs:     []string{parsed.Addr},
			Username:  parsed.Username,
			Password:  password,
			DB:        parsed.DB,
			TLSConfig: parsed.TLSConfig,
		},
		desc: parsed.Addr,
	}, nil
}

func normalizeAddrs(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}

// RunMigrations applies pending dispatch_state migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	applied, err := migrate.Run(ctx, db, logger)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed", "applied", len(applied))
	}
	return nil
}
