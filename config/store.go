package config

import (
	"fmt"
	"strings"
)

// StoreDriver selects the dispatch state backend.
type StoreDriver string

const (
	// StoreDriverRedis keeps the state under one Redis key.
	StoreDriverRedis StoreDriver = "redis"
	// StoreDriverPostgres keeps the state in the dispatch_state table.
	StoreDriverPostgres StoreDriver = "postgres"
	// StoreDriverMemory keeps the state in process memory. It does not survive restarts.
	StoreDriverMemory StoreDriver = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for StoreDriver.
func (d *StoreDriver) UnmarshalText(text []byte) error {
	v := StoreDriver(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case StoreDriverRedis, StoreDriverPostgres, StoreDriverMemory:
		*d = v
		return nil
	default:
		return fmt.Errorf("invalid StoreDriver: %q (valid options: redis, postgres, memory)", string(text))
	}
}

// StoreConfig selects and namespaces the durable dispatch state.
type StoreConfig struct {
	Driver StoreDriver `env:"STORE_DRIVER" envDefault:"redis"`
	Key    string      `env:"STORE_KEY"    envDefault:"mailrelay:dispatch_state"`
}

// Sanitize applies guardrails to store configuration values.
func (s *StoreConfig) Sanitize() {
	if s.Driver == "" {
		s.Driver = StoreDriverRedis
	}
	if s.Key = strings.TrimSpace(s.Key); s.Key == "" {
		s.Key = "mailrelay:dispatch_state"
	}
}
