// Package migrations manages the PostgreSQL schema of the document store.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/saviobatista/vessel-tracker/internal/logging"
)

// ErrNothingToRollback is returned by Rollback when no migration is applied
var ErrNothingToRollback = errors.New("no migrations to rollback")

// Migration represents a database migration
type Migration struct {
	Name    string
	UpSQL   string
	DownSQL string
}

// All lists the migrations of the document store in apply order
func All() []*Migration {
	return []*Migration{DocumentsSchema, HistoryIndexes}
}

// Status describes one migration and whether it is applied
type Status struct {
	Name    string
	Applied bool
}

// Migrator manages database migrations
type Migrator struct {
	db *sql.DB
}

// New creates a new Migrator
func New(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist
func (m *Migrator) Initialize(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

// Applied returns the names of applied migrations
func (m *Migrator) Applied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT name FROM schema_migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// run executes stmt and the bookkeeping query in one transaction
func (m *Migrator) run(ctx context.Context, migration *Migration, stmt, recordQuery string) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Warn().Err(rbErr).Str("migration", migration.Name).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.Name, err)
	}
	if _, err = tx.ExecContext(ctx, recordQuery, migration.Name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
	}

	return tx.Commit()
}

// Apply applies a single migration
func (m *Migrator) Apply(ctx context.Context, migration *Migration) error {
	return m.run(ctx, migration, migration.UpSQL, `INSERT INTO schema_migrations (name) VALUES ($1)`)
}

// Revert rolls back a single migration
func (m *Migrator) Revert(ctx context.Context, migration *Migration) error {
	return m.run(ctx, migration, migration.DownSQL, `DELETE FROM schema_migrations WHERE name = $1`)
}

// Migrate applies all pending migrations in order and returns how many ran
func (m *Migrator) Migrate(ctx context.Context, migrations []*Migration) (int, error) {
	if err := m.Initialize(ctx); err != nil {
		return 0, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	count := 0
	for _, migration := range migrations {
		if applied[migration.Name] {
			continue
		}
		if err := m.Apply(ctx, migration); err != nil {
			return count, err
		}
		logging.Info().Str("migration", migration.Name).Msg("Applied migration")
		count++
	}

	return count, nil
}

// Rollback rolls back the last applied migration
func (m *Migrator) Rollback(ctx context.Context, migrations []*Migration) (*Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var last *Migration
	for i := len(migrations) - 1; i >= 0; i-- {
		if applied[migrations[i].Name] {
			last = migrations[i]
			break
		}
	}
	if last == nil {
		return nil, ErrNothingToRollback
	}

	if err := m.Revert(ctx, last); err != nil {
		return nil, err
	}

	logging.Info().Str("migration", last.Name).Msg("Rolled back migration")
	return last, nil
}

// Status reports every known migration and whether it is applied
func (m *Migrator) Status(ctx context.Context, migrations []*Migration) ([]Status, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	status := make([]Status, 0, len(migrations))
	for _, migration := range migrations {
		status = append(status, Status{Name: migration.Name, Applied: applied[migration.Name]})
	}
	return status, nil
}
