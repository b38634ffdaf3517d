package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresMigrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE recording_status AS ENUM ('running', 'completed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS recordings (
		id UUID PRIMARY KEY,
		backend_url TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		status recording_status NOT NULL DEFAULT 'running',
		stop_reason TEXT NOT NULL DEFAULT '',
		entry_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recordings_running ON recordings (started_at) WHERE status = 'running'`,
	`CREATE TABLE IF NOT EXISTS transcript_entries (
		recording_id UUID NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
		entry_index INTEGER NOT NULL,
		speaker_tag INTEGER NOT NULL,
		role TEXT NOT NULL,
		label TEXT NOT NULL,
		content TEXT NOT NULL,
		spoken_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (recording_id, entry_index)
	)`,
}

var sqliteMigrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		backend_url TEXT NOT NULL,
		started_at REAL NOT NULL,
		ended_at REAL,
		status TEXT NOT NULL DEFAULT 'running',
		stop_reason TEXT NOT NULL DEFAULT '',
		entry_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recordings_started ON recordings (started_at)`,
	`CREATE TABLE IF NOT EXISTS transcript_entries (
		recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
		entry_index INTEGER NOT NULL,
		speaker_tag INTEGER NOT NULL,
		role TEXT NOT NULL,
		label TEXT NOT NULL,
		content TEXT NOT NULL,
		spoken_at REAL NOT NULL,
		created_at REAL NOT NULL,
		PRIMARY KEY (recording_id, entry_index)
	)`,
}

func RunPostgresMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range postgresMigrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func RunSQLiteMigration(ctx context.Context, db *sql.DB) error {
	for _, s := range sqliteMigrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
