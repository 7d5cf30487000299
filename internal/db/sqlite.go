package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fiemcasals/controlador/internal/config"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (creating if needed) the SQLite database at cfg.SQLitePath
// with WAL journaling and foreign keys enabled.
func OpenSQLite(cfg config.Config) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Writers serialize inside SQLite anyway; one connection keeps :memory: databases shared.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}
