package database

import (
	"context"
	"fmt"
)

func (db *PostgresDB) InitSchema(ctx context.Context) error {
	// 1. Agent Runs Table
	runsQuery := `
		CREATE TABLE IF NOT EXISTS agent_runs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			question TEXT NOT NULL,
			answer TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			transcript JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	if _, err := db.Pool.Exec(ctx, runsQuery); err != nil {
		return fmt.Errorf("failed to create agent_runs table: %w", err)
	}

	// 2. Agent Logs Table
	logsQuery := `
		CREATE TABLE IF NOT EXISTS agent_logs (
			id SERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES agent_runs(id) ON DELETE CASCADE,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB
		);
	`
	if _, err := db.Pool.Exec(ctx, logsQuery); err != nil {
		return fmt.Errorf("failed to create agent_logs table: %w", err)
	}

	// Indexes for faster querying
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_agent_logs_run_id ON agent_logs(run_id)"); err != nil {
		return fmt.Errorf("failed to create index on agent_logs: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_agent_runs_created_at ON agent_runs(created_at DESC)"); err != nil {
		return fmt.Errorf("failed to create index on agent_runs: %w", err)
	}

	return nil
}
