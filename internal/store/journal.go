// Package store journals scheduled items and their state changes to
// Postgres or SQLite. The journal is an audit trail: the engine only reads
// it back to serve an item's transition history.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"jobmate/autoapply-service/internal/apply"
	"jobmate/autoapply-service/internal/pacing"
)

// dbtx is the subset of *pgxpool.Pool the journal uses.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Journal writes to the scheduled_items table.
type Journal struct {
	db dbtx
}

// NewJournal returns a Journal over db, typically a *pgxpool.Pool.
func NewJournal(db dbtx) *Journal {
	return &Journal{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS scheduled_items (
    id                     TEXT PRIMARY KEY,
    job_id                 TEXT        NOT NULL,
    board                  TEXT        NOT NULL,
    planned_time           TIMESTAMPTZ NOT NULL,
    min_score_at_plan_time INT         NOT NULL,
    match_score            INT         NOT NULL,
    paraphrase_level       INT         NOT NULL,
    state                  TEXT        NOT NULL DEFAULT 'PLANNED',
    reason                 TEXT        NOT NULL DEFAULT '',
    sent_at                TIMESTAMPTZ,
    history_log            JSONB       NOT NULL DEFAULT '[]'::jsonb,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS scheduled_items_planned_time_idx ON scheduled_items (planned_time);`

// EnsureSchema creates the journal table if it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensureSchema: %w", err)
	}
	return nil
}

// SavePlanned inserts items in PLANNED state. Items already journaled are
// left as they are.
func (j *Journal) SavePlanned(ctx context.Context, items []pacing.ScheduledItem) error {
	for _, it := range items {
		_, err := j.db.Exec(ctx,
			`INSERT INTO scheduled_items
			   (id, job_id, board, planned_time, min_score_at_plan_time, match_score, paraphrase_level)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO NOTHING`,
			it.ID, it.JobID, it.Board, it.PlannedTime,
			it.MinScoreAtPlanTime, it.MatchScore, it.ParaphraseLevel,
		)
		if err != nil {
			return fmt.Errorf("savePlanned %s: %w", it.ID, err)
		}
	}
	return nil
}

// RecordTransition applies tr to the journaled item and appends it to the
// item's history_log.
func (j *Journal) RecordTransition(ctx context.Context, tr apply.Transition) error {
	historyEntry, err := json.Marshal(map[string]string{
		"from":   string(tr.From),
		"to":     string(tr.To),
		"at":     tr.At.UTC().Format(time.RFC3339),
		"reason": tr.Reason,
	})
	if err != nil {
		return fmt.Errorf("recordTransition marshal: %w", err)
	}

	var sentAt *time.Time
	if tr.To == apply.StateSent {
		sentAt = &tr.At
	}

	tag, err := j.db.Exec(ctx,
		`UPDATE scheduled_items
		 SET state       = $1,
		     reason      = $2,
		     sent_at     = COALESCE($3, sent_at),
		     history_log = history_log || $4::jsonb,
		     updated_at  = NOW()
		 WHERE id = $5`,
		string(tr.To), tr.Reason, sentAt, fmt.Sprintf("[%s]", historyEntry), tr.ID,
	)
	if err != nil {
		return fmt.Errorf("recordTransition %s: %w", tr.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recordTransition %s: %w", tr.ID, apply.ErrNotFound)
	}
	return nil
}

// History returns the journaled transitions of id, oldest first.
func (j *Journal) History(ctx context.Context, id string) ([]map[string]string, error) {
	var raw []byte
	err := j.db.QueryRow(ctx, `SELECT history_log FROM scheduled_items WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("history %s: %w", id, apply.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", id, err)
	}
	var out []map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("history %s: %w", id, err)
	}
	return out, nil
}
