package database

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Config holds SQLite storage settings shared across bots.
type Config struct {
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	BusyTimeoutMS  int    `yaml:"busy_timeout_ms" envconfig:"DB_BUSY_TIMEOUT_MS"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

const (
	defaultBusyTimeoutMS  = 5000
	defaultMaxConnections = 1
	defaultMigrationsDir  = "migrations"
)

func (c Config) busyTimeoutMS() int {
	if c.BusyTimeoutMS > 0 {
		return c.BusyTimeoutMS
	}
	return defaultBusyTimeoutMS
}

func (c Config) maxConnections() int {
	if c.MaxConnections > 0 {
		return c.MaxConnections
	}
	return defaultMaxConnections
}

func (c Config) migrationsDir() string {
	if dir := strings.TrimSpace(c.MigrationsDir); dir != "" {
		return dir
	}
	return defaultMigrationsDir
}

// DSN builds the modernc sqlite DSN with the pragmas every connection needs.
func (c Config) DSN() string {
	pragmas := url.Values{}
	pragmas.Add("_pragma", "journal_mode(WAL)")
	pragmas.Add("_pragma", "foreign_keys(1)")
	pragmas.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.busyTimeoutMS()))
	return filepath.Clean(c.Path) + "?" + pragmas.Encode()
}
