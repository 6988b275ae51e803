package store

import (
	"context"
	"fmt"
)

// migration is one versioned schema step. Migrations are applied once, at
// startup, in ascending version order. There is no runtime schema repair:
// if a migration fails the store refuses to proceed.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations is the fixed, append-only migration list. Never reorder or
// edit an entry that has shipped; add a new version instead.
var migrations = []migration{
	{
		version: 1,
		name:    "domain tables",
		stmt: `
		CREATE TABLE IF NOT EXISTS workout_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			template_id TEXT,
			gym_id TEXT,
			name TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			completed_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS set_logs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			exercise_id TEXT NOT NULL,
			set_index INTEGER NOT NULL,
			weight_kg REAL,
			reps INTEGER,
			reps_l INTEGER,
			reps_r INTEGER,
			time_seconds INTEGER,
			is_pb INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS exercise_definitions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			modality TEXT NOT NULL,
			muscle_group TEXT NOT NULL DEFAULT '',
			equipment TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS workout_templates (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS template_exercises (
			id TEXT PRIMARY KEY,
			template_id TEXT NOT NULL,
			exercise_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			target_sets INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS training_paths (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			weeks INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			bodyweight_kg REAL,
			units TEXT NOT NULL DEFAULT 'kg',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS gyms (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user ON workout_sessions(user_id);
		CREATE INDEX IF NOT EXISTS idx_setlogs_session ON set_logs(session_id);
		CREATE INDEX IF NOT EXISTS idx_setlogs_exercise ON set_logs(user_id, exercise_id);
		CREATE INDEX IF NOT EXISTS idx_exercises_user ON exercise_definitions(user_id);
		`,
	},
	{
		version: 2,
		name:    "sync queue",
		stmt: `
		CREATE TABLE IF NOT EXISTS sync_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			operation TEXT NOT NULL,
			tbl TEXT NOT NULL,
			payload TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			priority INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_sync_queue_order ON sync_queue(timestamp, id);
		`,
	},
	{
		version: 3,
		name:    "set drafts",
		stmt: `
		CREATE TABLE IF NOT EXISTS set_drafts (
			exercise_id TEXT NOT NULL,
			set_index INTEGER NOT NULL,
			session_id TEXT,
			weight_kg REAL,
			reps INTEGER,
			reps_l INTEGER,
			reps_r INTEGER,
			time_seconds INTEGER,
			is_pb INTEGER NOT NULL DEFAULT 0,
			is_saved INTEGER NOT NULL DEFAULT 0,
			set_log_id TEXT,
			PRIMARY KEY (exercise_id, set_index)
		);

		CREATE INDEX IF NOT EXISTS idx_set_drafts_session ON set_drafts(session_id);
		`,
	},
	{
		version: 4,
		name:    "dead letters",
		stmt: `
		CREATE TABLE IF NOT EXISTS sync_dead_letters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			queue_id INTEGER NOT NULL,
			operation TEXT NOT NULL,
			tbl TEXT NOT NULL,
			payload TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			error TEXT,
			reason TEXT NOT NULL,
			dropped_at TEXT NOT NULL
		);
		`,
	},
}

// Migrate applies all pending migrations in order.
//
// Each migration runs in its own transaction and is recorded in
// schema_migrations. Safe to call multiple times; already-applied versions
// are skipped. Any failure aborts the remaining migrations and is returned
// to the caller; the store must not be used after a failed Migrate.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	current, err := db.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	return db.schemaVersion(ctx)
}

func (db *DB) schemaVersion(ctx context.Context) (int, error) {
	var version int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func (db *DB) applyMigration(ctx context.Context, m migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		m.version, m.name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
