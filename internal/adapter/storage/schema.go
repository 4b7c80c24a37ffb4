// internal/adapter/storage/schema.go

package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Schema for the three ingestion tables. The unique constraint on
// content_hash is the final deduplication guarantee under concurrent
// writers; children cascade-delete with their record.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS trend_records (
		id               TEXT PRIMARY KEY,
		content_hash     TEXT NOT NULL UNIQUE,
		similarity_hash  TEXT NOT NULL,
		platform         TEXT NOT NULL,
		category         TEXT NOT NULL,
		language         TEXT NOT NULL DEFAULT '',
		region           TEXT NOT NULL DEFAULT '',
		title            TEXT NOT NULL,
		summary          TEXT NOT NULL,
		url              TEXT NOT NULL DEFAULT '',
		author           TEXT NOT NULL DEFAULT '',
		source_id        TEXT NOT NULL,
		timestamp        TIMESTAMPTZ NOT NULL,
		ingested_at      TIMESTAMPTZ NOT NULL,
		engagement_count BIGINT NOT NULL DEFAULT 0,
		view_count       BIGINT NOT NULL DEFAULT 0,
		share_count      BIGINT NOT NULL DEFAULT 0,
		quality_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
		freshness_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
		anomaly_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
		metadata         JSONB,
		raw_data         JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS trend_entities (
		id            BIGSERIAL PRIMARY KEY,
		record_id     TEXT NOT NULL REFERENCES trend_records(id) ON DELETE CASCADE,
		name          TEXT NOT NULL,
		type          TEXT NOT NULL,
		confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
		mentions      INTEGER NOT NULL DEFAULT 1,
		aliases       JSONB,
		wikipedia_url TEXT NOT NULL DEFAULT '',
		metadata      JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS trend_anomalies (
		id          BIGSERIAL PRIMARY KEY,
		record_id   TEXT NOT NULL REFERENCES trend_records(id) ON DELETE CASCADE,
		type        TEXT NOT NULL,
		severity    TEXT NOT NULL,
		confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		parameters  JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trend_records_timestamp ON trend_records (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_trend_records_platform ON trend_records (platform)`,
	`CREATE INDEX IF NOT EXISTS idx_trend_records_category ON trend_records (category)`,
	`CREATE INDEX IF NOT EXISTS idx_trend_records_quality ON trend_records (quality_score)`,
	`CREATE INDEX IF NOT EXISTS idx_trend_records_similarity_hash ON trend_records (similarity_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_trend_entities_record_id ON trend_entities (record_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trend_entities_name ON trend_entities (lower(name))`,
	`CREATE INDEX IF NOT EXISTS idx_trend_anomalies_record_id ON trend_anomalies (record_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trend_anomalies_type ON trend_anomalies (type)`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("error applying schema: %w", err)
		}
	}
	return nil
}
