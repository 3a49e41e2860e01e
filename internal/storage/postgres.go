package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hyperjump/filmdex/internal/backend"
)

// PostgresName is the backend name of the PostgreSQL dialect.
const PostgresName = "postgres"

type postgresDialect struct {
	dsn string
}

// NewPostgresStorage returns a backend on the PostgreSQL database at dsn. The connection
// is established on first use.
func NewPostgresStorage(dsn string, opts ...Option) *SQLStorage {
	return newSQLStorage(postgresDialect{dsn: dsn}, opts...)
}

func (postgresDialect) name() string { return PostgresName }

func (d postgresDialect) open() (*sql.DB, error) {
	db, err := sql.Open("postgres", d.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) likeOperator() string { return "ILIKE" }

func (postgresDialect) createTable() string {
	return `
	CREATE TABLE IF NOT EXISTS movies (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		poster_url TEXT,
		release_date BIGINT,
		director TEXT,
		synopsis TEXT,
		rating DOUBLE PRECISION,
		review TEXT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`
}

func (postgresDialect) columns(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = 'movies'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	have := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		have[name] = true
	}
	return have, rows.Err()
}

// classify treats data exceptions (class 22) and integrity violations (class 23) as rejected writes.
func (postgresDialect) classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23":
			return backend.ErrWriteRejected
		}
	}
	return backend.ErrBackendUnavailable
}
