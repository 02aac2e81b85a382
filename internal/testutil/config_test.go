package testutil

import (
	"net/url"
	"testing"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to the local test profile", func(t *testing.T) {
		for _, key := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME", "DB_SSL_MODE"} {
			t.Setenv(key, "")
		}
		cfg := DefaultTestDBConfig()
		want := TestDBConfig{
			Host:     "localhost",
			Port:     "55432",
			User:     "mailrelay",
			Password: "mailrelay",
			DBName:   "mailrelay",
			SSLMode:  "disable",
		}
		if cfg != want {
			t.Errorf("DefaultTestDBConfig() = %+v, want %+v", cfg, want)
		}
	})

	t.Run("respects TEST_DB_* overrides", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		cfg := DefaultTestDBConfig()
		if cfg.Host != "postgres" || cfg.Port != "5432" {
			t.Errorf("expected postgres:5432, got %s:%s", cfg.Host, cfg.Port)
		}
	})
}

func TestTestDBConfig_DSN(t *testing.T) {
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "relay", Password: "p@ss", DBName: "mailrelay", SSLMode: "disable"}

	u, err := url.Parse(cfg.DSN("t_abc,public"))
	if err != nil {
		t.Fatalf("DSN() produced an invalid URL: %v", err)
	}
	if u.Host != "db:5432" || u.Path != "/mailrelay" {
		t.Errorf("unexpected host/path %q %q", u.Host, u.Path)
	}
	if pw, _ := u.User.Password(); pw != "p@ss" {
		t.Errorf("password not preserved, got %q", pw)
	}
	if got := u.Query().Get("search_path"); got != "t_abc,public" {
		t.Errorf("search_path = %q", got)
	}

	plain, _ := url.Parse(cfg.DSN(""))
	if plain.Query().Has("search_path") {
		t.Error("empty search path should be omitted")
	}
}
