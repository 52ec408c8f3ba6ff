package db

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// loadMigrations reads the embedded NNNN_name.{up,down}.sql files, sorted by
// version. Every version needs exactly one up and one down file.
func loadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		version, name, up, err := parseFilename(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("migration %q: %w", entry.Name(), err)
		}
		body, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}

		target := &m.DownSQL
		if up {
			target = &m.UpSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate migration file for version %04d", version)
		}
		*target = string(body)
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %04d needs both up and down files", m.Version)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

// parseFilename splits "NNNN_name.up.sql" into its version, name and
// direction.
func parseFilename(filename string) (version int, name string, up bool, err error) {
	base, isUp := strings.CutSuffix(filename, ".up.sql")
	if !isUp {
		var isDown bool
		base, isDown = strings.CutSuffix(filename, ".down.sql")
		if !isDown {
			return 0, "", false, errors.New("expected .up.sql or .down.sql suffix")
		}
	}

	num, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", false, errors.New("expected format NNNN_name.{up,down}.sql")
	}

	version, err = strconv.Atoi(num)
	if err != nil {
		return 0, "", false, fmt.Errorf("version %q is not a number", num)
	}
	if version <= 0 {
		return 0, "", false, fmt.Errorf("version must be positive, got %d", version)
	}
	return version, name, isUp, nil
}

type migrator struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// up applies every pending migration in version order.
func (m migrator) up(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}

		m.logger.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("applying migration")
		err := m.inTx(ctx, mig.UpSQL,
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			mig.Version, mig.Name, time.Now().UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("migration %04d (%s): %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

// down reverts the n most recently applied migrations.
func (m migrator) down(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("n must be positive, got %d", n)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	var revert []Migration
	for _, mig := range slices.Backward(migrations) {
		if applied[mig.Version] {
			revert = append(revert, mig)
		}
	}
	if n > len(revert) {
		return fmt.Errorf("requested %d down migrations but only %d are applied", n, len(revert))
	}

	for _, mig := range revert[:n] {
		m.logger.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("reverting migration")
		err := m.inTx(ctx, mig.DownSQL, "DELETE FROM schema_migrations WHERE version = ?", mig.Version)
		if err != nil {
			return fmt.Errorf("revert migration %04d (%s): %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

// MigrateDown reverts the last n applied migrations.
func MigrateDown(ctx context.Context, conn *sql.DB, n int) error {
	return migrator{conn: conn, logger: zerolog.Nop()}.down(ctx, n)
}

func (m migrator) applied(ctx context.Context) (map[int]bool, error) {
	_, err := m.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT    NOT NULL,
			applied_at INTEGER NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := m.conn.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// inTx runs a migration body and its bookkeeping statement atomically.
func (m migrator) inTx(ctx context.Context, body, record string, args ...any) error {
	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("execute SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
