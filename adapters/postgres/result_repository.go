package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"sisas/domain/evidence"
	"sisas/domain/rollup"
)

// Schema for the result tables. Records are stored as JSONB alongside
// their audit hash so downstream queries never re-derive provenance.
const Schema = `
CREATE TABLE IF NOT EXISTS question_records (
	question_id   TEXT NOT NULL,
	record_hash   TEXT NOT NULL,
	passed        BOOLEAN NOT NULL,
	aborted       BOOLEAN NOT NULL,
	adjusted_score DOUBLE PRECISION NOT NULL,
	record        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (question_id, record_hash)
);

CREATE TABLE IF NOT EXISTS aggregate_records (
	level         TEXT NOT NULL,
	group_id      TEXT NOT NULL,
	record_hash   TEXT NOT NULL,
	score         DOUBLE PRECISION NOT NULL,
	coherence     DOUBLE PRECISION NOT NULL,
	record        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (level, group_id, record_hash)
);

CREATE TABLE IF NOT EXISTS run_manifests (
	run_id        TEXT PRIMARY KEY,
	record_hash   TEXT NOT NULL,
	manifest      JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// ResultRepository persists engine output records to Postgres. It
// implements ports.ResultSink.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository creates a repository over an open connection.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Connect opens a Postgres connection and ensures the result schema.
func Connect(ctx context.Context, databaseURL string) (*ResultRepository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring result schema: %w", err)
	}
	return &ResultRepository{db: db}, nil
}

// Close releases the underlying connection pool.
func (r *ResultRepository) Close() error {
	return r.db.Close()
}

// WriteQuestion inserts one question record.
func (r *ResultRepository) WriteQuestion(ctx context.Context, record *evidence.QuestionRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling question record: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO question_records (question_id, record_hash, passed, aborted, adjusted_score, record)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (question_id, record_hash) DO NOTHING`,
		record.QuestionID.String(),
		record.RecordHash.String(),
		record.Score.Passed,
		record.Score.Aborted,
		record.Score.AdjustedScore,
		payload,
	)
	if err != nil {
		return fmt.Errorf("inserting question record %s: %w", record.QuestionID, err)
	}
	return nil
}

// WriteAggregate inserts one aggregate record.
func (r *ResultRepository) WriteAggregate(ctx context.Context, score *rollup.GroupScore) error {
	payload, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("marshaling aggregate record: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO aggregate_records (level, group_id, record_hash, score, coherence, record)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (level, group_id, record_hash) DO NOTHING`,
		string(score.Level),
		score.GroupID,
		score.RecordHash.String(),
		score.Score,
		score.Coherence,
		payload,
	)
	if err != nil {
		return fmt.Errorf("inserting aggregate record %s/%s: %w", score.Level, score.GroupID, err)
	}
	return nil
}

// WriteManifest upserts the run manifest.
func (r *ResultRepository) WriteManifest(ctx context.Context, manifest *rollup.RunManifest) error {
	payload, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO run_manifests (run_id, record_hash, manifest)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO UPDATE SET record_hash = EXCLUDED.record_hash, manifest = EXCLUDED.manifest`,
		manifest.RunID.String(),
		manifest.RecordHash.String(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("inserting manifest %s: %w", manifest.RunID, err)
	}
	return nil
}
