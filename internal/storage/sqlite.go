package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/filmdex/internal/backend"
)

// SQLiteName is the backend name of the SQLite dialect.
const SQLiteName = "sqlite"

type sqliteDialect struct {
	path string
}

// NewSQLiteStorage returns a backend on the SQLite database at dbPath. The file and its parent
// directories are created on first use.
func NewSQLiteStorage(dbPath string, opts ...Option) *SQLStorage {
	return newSQLStorage(sqliteDialect{path: dbPath}, opts...)
}

func (sqliteDialect) name() string { return SQLiteName }

func (d sqliteDialect) open() (*sql.DB, error) {
	if dir := filepath.Dir(d.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", d.path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	return db, nil
}

// placeholder uses numbered parameters so one argument can be referenced twice.
func (sqliteDialect) placeholder(n int) string { return fmt.Sprintf("?%d", n) }

// likeOperator relies on SQLite's LIKE being case-insensitive for ASCII.
func (sqliteDialect) likeOperator() string { return "LIKE" }

func (sqliteDialect) createTable() string {
	return `
	CREATE TABLE IF NOT EXISTS movies (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		poster_url TEXT,
		release_date INTEGER,
		director TEXT,
		synopsis TEXT,
		rating REAL,
		review TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`
}

func (sqliteDialect) columns(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `PRAGMA table_info(movies)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		have[name] = true
	}
	return have, rows.Err()
}

func (sqliteDialect) classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint, sqlite3.ErrMismatch, sqlite3.ErrTooBig, sqlite3.ErrRange:
			return backend.ErrWriteRejected
		}
	}
	return backend.ErrBackendUnavailable
}
