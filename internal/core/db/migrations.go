package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/solatis/tradepromo/migrations"
)

// MigrationStatus represents the state of a single migration.
type MigrationStatus struct {
	ID          string
	Checksum    string
	Applied     bool
	AppliedAt   *time.Time
	ExecutionMs int64
}

// migration is one embedded migration file.
type migration struct {
	ID       string
	Checksum string
	SQL      string
}

// appliedMigration is a row of the migrations table.
type appliedMigration struct {
	ID          string    `db:"migration_id"`
	Checksum    string    `db:"checksum"`
	AppliedAt   time.Time `db:"applied_at"`
	ExecutionMs int64     `db:"execution_ms"`
}

// Tracking table DDL per driver; must match 001_initial_schema.sql.
var migrationsTableDDL = map[string]string{
	"sqlite3": `CREATE TABLE IF NOT EXISTS migrations (
		migration_id TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL,
		execution_ms INTEGER NOT NULL
	)`,
	"postgres": `CREATE TABLE IF NOT EXISTS migrations (
		migration_id TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL,
		execution_ms INTEGER NOT NULL
	)`,
}

// MigrateUp applies pending migrations in order, each in its own
// transaction, and returns the IDs it applied. Applied migrations whose
// embedded file changed since are an error.
func MigrateUp(ctx context.Context, db *sqlx.DB) ([]string, error) {
	pending, _, err := plan(ctx, db)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, m := range pending {
		if err := apply(ctx, db, m); err != nil {
			return ids, fmt.Errorf("migration %s: %w", m.ID, err)
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// MigrateStatus lists every embedded migration with its applied state.
func MigrateStatus(ctx context.Context, db *sqlx.DB) ([]MigrationStatus, error) {
	all, err := embedded(db.DriverName())
	if err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(all))
	for _, m := range all {
		s := MigrationStatus{ID: m.ID, Checksum: m.Checksum}
		if row, ok := applied[m.ID]; ok {
			at := row.AppliedAt
			s.Applied = true
			s.Checksum = row.Checksum
			s.AppliedAt = &at
			s.ExecutionMs = row.ExecutionMs
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

// RequireMigrations returns an error naming the first embedded migration not
// yet applied. Services call it at startup instead of migrating implicitly.
func RequireMigrations(ctx context.Context, db *sqlx.DB) error {
	pending, _, err := plan(ctx, db)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return fmt.Errorf("migration %s not applied - run 'tradepromo migrate' first", pending[0].ID)
	}
	return nil
}

// plan verifies applied checksums and returns the pending migrations.
func plan(ctx context.Context, db *sqlx.DB) (pending []migration, applied map[string]appliedMigration, err error) {
	all, err := embedded(db.DriverName())
	if err != nil {
		return nil, nil, err
	}
	applied, err = appliedMigrations(ctx, db)
	if err != nil {
		return nil, nil, err
	}

	known := make(map[string]bool, len(all))
	for _, m := range all {
		known[m.ID] = true
		row, ok := applied[m.ID]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if row.Checksum != m.Checksum {
			return nil, nil, fmt.Errorf("checksum mismatch for migration %s: applied %s, embedded %s", m.ID, row.Checksum, m.Checksum)
		}
	}
	for id := range applied {
		if !known[id] {
			return nil, nil, fmt.Errorf("migration %s exists in database but not in embedded files", id)
		}
	}
	return pending, applied, nil
}

// embedded returns the driver's migrations sorted by file name, each with
// the SHA-256 of its content.
func embedded(driver string) ([]migration, error) {
	fsys, err := migrations.ForDriver(driver)
	if err != nil {
		return nil, err
	}
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		sum := sha256.Sum256(content)
		out = append(out, migration{ID: name, Checksum: hex.EncodeToString(sum[:]), SQL: string(content)})
	}
	return out, nil
}

// appliedMigrations creates the tracking table if needed and reads it.
func appliedMigrations(ctx context.Context, db *sqlx.DB) (map[string]appliedMigration, error) {
	ddl, ok := migrationsTableDDL[db.DriverName()]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", db.DriverName())
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	var rows []appliedMigration
	if err := db.SelectContext(ctx, &rows, "SELECT migration_id, checksum, applied_at, execution_ms FROM migrations"); err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[string]appliedMigration, len(rows))
	for _, r := range rows {
		applied[r.ID] = r
	}
	return applied, nil
}

// apply runs m and records it in one transaction.
func apply(ctx context.Context, db *sqlx.DB, m migration) error {
	start := time.Now()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(m.SQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}

	record := tx.Rebind("INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES (?, ?, ?, ?)")
	if _, err := tx.ExecContext(ctx, record, m.ID, m.Checksum, time.Now().UTC(), time.Since(start).Milliseconds()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// splitStatements drops comment lines and splits on semicolons.
// lib/pq doesn't support multiple statements in single Exec.
func splitStatements(sql string) []string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var statements []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
