package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the full set of DDL statements the `migrate` CLI command
// applies, in order. Every per-tenant table except broadcast_events carries
// a bot_id column and an index leading with it, per the tenant-isolation
// invariant stated in this package's doc comment; broadcast_events is keyed
// by broadcast_id and reaches its bot through the broadcasts table.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS bots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		webhook_secret TEXT NOT NULL,
		status TEXT NOT NULL,
		llm_enabled BOOLEAN NOT NULL DEFAULT false,
		llm_preset TEXT NOT NULL DEFAULT 'neutral',
		daily_budget_limit BIGINT NOT NULL DEFAULT 0,
		default_locale TEXT NOT NULL DEFAULT 'ru',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS bot_specs (
		bot_id TEXT NOT NULL REFERENCES bots(id),
		version INT NOT NULL,
		spec_json JSONB NOT NULL,
		published_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (bot_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS bot_events (
		id BIGSERIAL PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		bot_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		trace_id TEXT NOT NULL,
		data JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS bot_events_bot_id_ts_idx ON bot_events (bot_id, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS bot_users (
		bot_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL DEFAULT '',
		last_active TIMESTAMPTZ NOT NULL DEFAULT now(),
		segment_tags TEXT[] NOT NULL DEFAULT '{}',
		is_active BOOLEAN NOT NULL DEFAULT true,
		PRIMARY KEY (bot_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS broadcasts (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		audience TEXT NOT NULL,
		message_template TEXT NOT NULL,
		throttle_per_sec INT NOT NULL DEFAULT 10,
		status TEXT NOT NULL,
		total_users INT NOT NULL DEFAULT 0,
		sent INT NOT NULL DEFAULT 0,
		failed INT NOT NULL DEFAULT 0,
		blocked INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS broadcasts_bot_id_idx ON broadcasts (bot_id)`,
	`CREATE TABLE IF NOT EXISTS broadcast_events (
		broadcast_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		error_code TEXT NOT NULL DEFAULT '',
		sent_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (broadcast_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS locales (
		bot_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		chat_id TEXT NOT NULL DEFAULT '',
		locale TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS locales_user_idx ON locales (bot_id, user_id) WHERE chat_id = ''`,
	`CREATE UNIQUE INDEX IF NOT EXISTS locales_chat_idx ON locales (bot_id, chat_id) WHERE user_id = ''`,
	`CREATE TABLE IF NOT EXISTS i18n_keys (
		bot_id TEXT NOT NULL,
		locale TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (bot_id, locale, key)
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		bot_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		service TEXT NOT NULL,
		slot TEXT NOT NULL,
		booked_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_bot_id_idx ON bookings (bot_id)`,
	`CREATE TABLE IF NOT EXISTS wizard_states (
		bot_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		format TEXT NOT NULL DEFAULT '',
		flow_cmd TEXT NOT NULL,
		step INT NOT NULL DEFAULT 0,
		vars JSONB NOT NULL DEFAULT '{}',
		started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		ttl_sec INT NOT NULL DEFAULT 86400,
		pending_callback TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (bot_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS llm_budget_usage (
		bot_id TEXT NOT NULL,
		day TEXT NOT NULL,
		tokens_used BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (bot_id, day)
	)`,
}

// Migrate applies Schema in order. Statements use IF NOT EXISTS and are
// safe to re-run.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
