package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered schema history. Entries are append-only.
var migrations = []Migration{
	{
		Version:     1,
		Description: "create decision_log",
		SQL: `
			CREATE TABLE IF NOT EXISTS decision_log (
				id UUID PRIMARY KEY,
				timestamp TIMESTAMPTZ NOT NULL,
				agent_id TEXT NOT NULL,
				task_id TEXT NOT NULL,
				asset TEXT NOT NULL,
				asset_class TEXT NOT NULL,
				timeframe TEXT NOT NULL,
				signal_type TEXT NOT NULL,
				signal_value JSONB NOT NULL,
				confidence DOUBLE PRECISION NOT NULL,
				reasoning TEXT NOT NULL,
				data_sources TEXT[] NOT NULL DEFAULT '{}',
				market_regime TEXT NOT NULL,
				outcome_pnl DOUBLE PRECISION,
				outcome_latency_days INTEGER,
				contributed_to_trade BOOLEAN NOT NULL DEFAULT FALSE,
				trade_was_profitable BOOLEAN
			);
		`,
	},
	{
		Version:     2,
		Description: "decision_log indexes",
		SQL: `
			CREATE INDEX IF NOT EXISTS idx_decision_log_timestamp
				ON decision_log (timestamp);
			CREATE INDEX IF NOT EXISTS idx_decision_log_outcome_ready
				ON decision_log (timestamp)
				WHERE outcome_pnl IS NOT NULL AND trade_was_profitable IS NOT NULL;
			CREATE INDEX IF NOT EXISTS idx_decision_log_agent
				ON decision_log (agent_id, timestamp);
		`,
	},
}

// Migrator applies pending schema migrations in version order
type Migrator struct {
	pool PoolInterface
}

// NewMigrator creates a migration runner
func NewMigrator(pool PoolInterface) *Migrator {
	return &Migrator{pool: pool}
}

func (m *Migrator) ensureSchemaVersionTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW(),
			description TEXT
		);
	`
	_, err := m.pool.Exec(ctx, query)
	return err
}

func (m *Migrator) currentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// Run applies all migrations newer than the current schema version
func (m *Migrator) Run(ctx context.Context) error {
	if err := m.ensureSchemaVersionTable(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema_version table: %w", err)
	}
	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= current {
			continue
		}
		if _, err := m.pool.Exec(ctx, migration.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
		if _, err := m.pool.Exec(ctx,
			"INSERT INTO schema_version (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		log.Info().
			Int("version", migration.Version).
			Str("description", migration.Description).
			Msg("Migration applied")
	}
	return nil
}
