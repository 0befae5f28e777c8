package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations in order, recording them in
// schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the tracking table if missing.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns the applied versions.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var lastVersion int
	for v := range applied {
		if v > lastVersion {
			lastVersion = v
		}
	}
	if lastVersion == 0 {
		return nil
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == lastVersion {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, lastVersion)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("rollback migration %d: %w", lastVersion, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), lastVersion)
		return err
	})
}

// GetMigrations returns the embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_user_stats", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_item_progress", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_streaks_and_achievements", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

const migration001Up = `
CREATE TABLE IF NOT EXISTS user_stats (
	user_id BIGINT PRIMARY KEY,
	lessons_completed INTEGER NOT NULL DEFAULT 0,
	words_learned INTEGER NOT NULL DEFAULT 0,
	kana_mastered INTEGER NOT NULL DEFAULT 0,
	kanji_mastered INTEGER NOT NULL DEFAULT 0,
	grammar_mastered INTEGER NOT NULL DEFAULT 0,
	audio_exercises_passed INTEGER NOT NULL DEFAULT 0,
	kana_recognized INTEGER NOT NULL DEFAULT 0,
	total_points INTEGER NOT NULL DEFAULT 0,
	daily_points INTEGER NOT NULL DEFAULT 0,
	streak_days INTEGER NOT NULL DEFAULT 0,
	longest_streak INTEGER NOT NULL DEFAULT 0,
	streak_synced_on TIMESTAMPTZ,
	last_token TEXT NOT NULL DEFAULT '',
	last_activity TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migration001Down = `DROP TABLE IF EXISTS user_stats;`

const migration002Up = `
CREATE TABLE IF NOT EXISTS study_items (
	id BIGINT NOT NULL,
	kind TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (kind, id)
);

CREATE TABLE IF NOT EXISTS item_progress (
	user_id BIGINT NOT NULL,
	item_id BIGINT NOT NULL,
	kind TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	correct_attempts INTEGER NOT NULL DEFAULT 0,
	incorrect_attempts INTEGER NOT NULL DEFAULT 0,
	stage TEXT NOT NULL DEFAULT 'new',
	next_review_at TIMESTAMPTZ,
	mastered_at TIMESTAMPTZ,
	last_token TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, kind, item_id)
);

CREATE INDEX IF NOT EXISTS idx_item_progress_user_updated
	ON item_progress (user_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_item_progress_next_review
	ON item_progress (next_review_at);
`

const migration002Down = `
DROP TABLE IF EXISTS item_progress;
DROP TABLE IF EXISTS study_items;
`

const migration003Up = `
CREATE TABLE IF NOT EXISTS user_daily_activity (
	user_id BIGINT NOT NULL,
	activity_date DATE NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT FALSE,
	is_frozen BOOLEAN NOT NULL DEFAULT FALSE,
	currency_earned INTEGER NOT NULL DEFAULT 0,
	lessons_completed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, activity_date)
);

CREATE INDEX IF NOT EXISTS idx_daily_activity_date
	ON user_daily_activity (activity_date);

CREATE TABLE IF NOT EXISTS achievement_catalogue (
	id BIGINT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	icon TEXT NOT NULL DEFAULT '',
	points INTEGER NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT 'general',
	rule_counter TEXT NOT NULL,
	rule_threshold INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS user_achievements (
	user_id BIGINT NOT NULL,
	achievement_id BIGINT NOT NULL,
	earned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, achievement_id)
);
`

const migration003Down = `
DROP TABLE IF EXISTS user_achievements;
DROP TABLE IF EXISTS achievement_catalogue;
DROP TABLE IF EXISTS user_daily_activity;
`
