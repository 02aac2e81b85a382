package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: PostgreSQL and Redis connections
//   - store.go: dispatch state store selection
//   - dispatch.go: batching, pacing and log retention
//   - transport.go: sending server connection and reconnect policy
//   - http.go: HTTP server configuration
//   - services.go: service modes and the stats reporter
type AppConfig struct {
	// IsDev controls development mode behavior (text logs, relaxed auth).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// State store configuration
	Store StoreConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	// Dispatch orchestration
	Dispatch DispatchConfig

	// Sending server transport
	Transport TransportConfig

	// Stats reporter configuration
	StatsReporter StatsReporterConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Store.Sanitize()
	c.Dispatch.Sanitize()
	c.Transport.Sanitize()
	c.StatsReporter.Sanitize()
	c.Observability.Sanitize()

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsStatsReporterEnabled returns true if the stats reporter service is enabled.
func (c *AppConfig) IsStatsReporterEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeStatsReporter]
}

// NeedsPostgres reports whether any enabled component requires a PostgreSQL connection.
func (c *AppConfig) NeedsPostgres() bool {
	return c.Store.Driver == StoreDriverPostgres
}

// NeedsRedis reports whether any enabled component requires a Redis connection.
func (c *AppConfig) NeedsRedis() bool {
	return c.Store.Driver == StoreDriverRedis
}
