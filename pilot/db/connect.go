package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/policypilot/policypilot/pilot/config"
)

// Connect opens the libSQL database described by cfg and verifies basic
// connectivity. file: URLs run embedded; anything else is treated as a remote
// server DSN and passed through, with the auth token appended when set.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.URL
	if path, ok := strings.CutPrefix(dsn, "file:"); ok {
		if err := ensureDBFile(path); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_synchronous=NORMAL", path)
	} else if cfg.AuthToken != "" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = dsn + sep + "authToken=" + cfg.AuthToken
	}

	conn, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnLifetime)
	}

	var probe int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&probe); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connectivity check failed: %w", err)
	}

	return conn, nil
}

func ensureDBFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create database file %s: %w", path, err)
		}
		f.Close()
	}
	return nil
}
