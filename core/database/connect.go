package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"dripbot/core/logger"
	"log/slog"
)

// Connect opens the SQLite database, configures the pool, and verifies connectivity.
func Connect(cfg Config) (*sqlx.DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("db connect: storage path is required")
	}
	if dir := filepath.Dir(filepath.Clean(cfg.Path)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("db connect: create data dir: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	sqlxDB, err := sqlx.ConnectContext(ctx, "sqlite", cfg.DSN())
	took := time.Since(start)
	if err != nil {
		logger.DB.Error("db connect failed",
			slog.String("event", "db.connect"),
			slog.String("driver", "sqlite"),
			slog.String("path", cfg.Path),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	// SQLite allows a single writer; the busy_timeout pragma covers the
	// rest, but a small pool keeps lock contention out of the picture.
	sqlxDB.SetMaxOpenConns(cfg.maxConnections())
	sqlxDB.SetMaxIdleConns(cfg.maxConnections())
	sqlxDB.SetConnMaxLifetime(0)

	logger.DB.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("driver", "sqlite"),
		slog.String("path", cfg.Path),
		slog.Int("pool_open", cfg.maxConnections()),
		slog.Duration("duration", logger.RoundMS(took)),
	)

	return sqlxDB, nil
}
