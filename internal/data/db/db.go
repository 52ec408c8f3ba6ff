// Package db opens the taskdeck SQLite database and keeps its schema current.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const (
	maxRetries  = 5
	initialWait = 100 * time.Millisecond
)

// OpenOptions tunes the connection pool.
type OpenOptions struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
	MaxIdleConns int
	Logger       zerolog.Logger
}

// DefaultOpenOptions returns the pool settings used by the CLI.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		Logger:       zerolog.Nop(),
	}
}

// DB is a migrated SQLite connection pool.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if needed) the database file at path, verifies the
// connection, and applies pending migrations.
func Open(path string, opts OpenOptions) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)",
		path, opts.BusyTimeout.Milliseconds(),
	)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(opts.MaxIdleConns)
	}

	ctx := context.Background()
	if err := pingWithRetry(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	m := migrator{conn: conn, logger: opts.Logger}
	if err := m.up(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying pool.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// WithTx runs fn inside a transaction, rolling back when fn fails.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func pingWithRetry(ctx context.Context, conn *sql.DB) error {
	wait := initialWait
	var err error
	for i := range maxRetries {
		if err = conn.PingContext(ctx); err == nil {
			return nil
		}
		if i < maxRetries-1 {
			time.Sleep(wait)
			wait *= 2
		}
	}
	return fmt.Errorf("ping database after %d attempts: %w", maxRetries, err)
}
