package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id       UUID PRIMARY KEY,
		name     TEXT NOT NULL,
		nickname TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id                UUID PRIMARY KEY,
		date              TIMESTAMPTZ NOT NULL,
		summary           TEXT NOT NULL DEFAULT '',
		location_name     TEXT NOT NULL DEFAULT '',
		location_address  TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL DEFAULT 'draft',
		win_threshold     INT NOT NULL DEFAULT 2,
		points_per_game   INT NOT NULL DEFAULT 200,
		last_table_number INT NOT NULL DEFAULT 0,
		is_active         BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS session_tables (
		id         UUID PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
		number     INT NOT NULL,
		pairs      JSONB NOT NULL,
		round      INT NOT NULL DEFAULT 0,
		hands      JSONB NOT NULL DEFAULT '[]',
		history    JSONB NOT NULL DEFAULT '[]',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (session_id, number)
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_date_idx ON sessions (date DESC)`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement %d: %w", i, err)
			}
		}
		return nil
	})
}
