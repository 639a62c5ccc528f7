package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"jobmate/autoapply-service/internal/apply"
	"jobmate/autoapply-service/internal/pacing"
)

// SQLiteJournal is a single-file journal for running without Postgres.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the journal database at path. Use ":memory:"
// for a throwaway journal.
func OpenSQLite(ctx context.Context, path string) (*SQLiteJournal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("sqlite journal: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite journal: open: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS scheduled_items (
		id                     TEXT PRIMARY KEY,
		job_id                 TEXT    NOT NULL,
		board                  TEXT    NOT NULL,
		planned_time           TEXT    NOT NULL,
		min_score_at_plan_time INTEGER NOT NULL,
		match_score            INTEGER NOT NULL,
		paraphrase_level       INTEGER NOT NULL,
		state                  TEXT    NOT NULL DEFAULT 'PLANNED',
		reason                 TEXT    NOT NULL DEFAULT '',
		sent_at                TEXT,
		history_log            TEXT    NOT NULL DEFAULT '[]',
		updated_at             TEXT    NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite journal: init schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Close releases the database.
func (j *SQLiteJournal) Close() error { return j.db.Close() }

// SavePlanned inserts items in PLANNED state, leaving known items untouched.
func (j *SQLiteJournal) SavePlanned(ctx context.Context, items []pacing.ScheduledItem) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, it := range items {
		_, err := j.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO scheduled_items
			   (id, job_id, board, planned_time, min_score_at_plan_time, match_score, paraphrase_level, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, it.JobID, it.Board, it.PlannedTime.UTC().Format(time.RFC3339),
			it.MinScoreAtPlanTime, it.MatchScore, it.ParaphraseLevel, now,
		)
		if err != nil {
			return fmt.Errorf("savePlanned %s: %w", it.ID, err)
		}
	}
	return nil
}

// RecordTransition applies tr and appends it to the item's history_log.
func (j *SQLiteJournal) RecordTransition(ctx context.Context, tr apply.Transition) error {
	at := tr.At.UTC().Format(time.RFC3339)
	historyEntry, err := json.Marshal(map[string]string{
		"from":   string(tr.From),
		"to":     string(tr.To),
		"at":     at,
		"reason": tr.Reason,
	})
	if err != nil {
		return fmt.Errorf("recordTransition marshal: %w", err)
	}

	var sentAt sql.NullString
	if tr.To == apply.StateSent {
		sentAt = sql.NullString{String: at, Valid: true}
	}

	res, err := j.db.ExecContext(ctx,
		`UPDATE scheduled_items
		 SET state       = ?,
		     reason      = ?,
		     sent_at     = COALESCE(?, sent_at),
		     history_log = json_insert(history_log, '$[#]', json(?)),
		     updated_at  = ?
		 WHERE id = ?`,
		string(tr.To), tr.Reason, sentAt, string(historyEntry), at, tr.ID,
	)
	if err != nil {
		return fmt.Errorf("recordTransition %s: %w", tr.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recordTransition %s: %w", tr.ID, apply.ErrNotFound)
	}
	return nil
}

// History returns the journaled transitions of id, oldest first.
func (j *SQLiteJournal) History(ctx context.Context, id string) ([]map[string]string, error) {
	var raw string
	err := j.db.QueryRowContext(ctx, `SELECT history_log FROM scheduled_items WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history %s: %w", id, apply.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", id, err)
	}
	var out []map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("history %s: %w", id, err)
	}
	return out, nil
}
