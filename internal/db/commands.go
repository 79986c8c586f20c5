package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Command kinds recorded in the journal.
const (
	KindSetPose    = "set_pose"
	KindSetNavGoal = "set_nav_goal"
	KindSetWalls   = "set_walls"
	KindClearWalls = "clear_walls"
)

// OutcomeOK marks a command that was fully applied.
const OutcomeOK = "ok"

// CommandRecord is one journaled operator command.
type CommandRecord struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Outcome   string          `json:"outcome"`
	CreatedAt time.Time       `json:"created_at"`
}

// RecordCommand journals a command with its JSON-encoded payload. An empty
// outcome is stored as OutcomeOK.
func (db *DB) RecordCommand(ctx context.Context, kind string, payload any, outcome string, at time.Time) (CommandRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return CommandRecord{}, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	if outcome == "" {
		outcome = OutcomeOK
	}
	rec := CommandRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   data,
		Outcome:   outcome,
		CreatedAt: at.UTC(),
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO commands (command_id, kind, payload, outcome, created_unix_nanos) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, string(rec.Payload), rec.Outcome, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return CommandRecord{}, fmt.Errorf("failed to record %s command: %w", kind, err)
	}
	return rec, nil
}

// RecentCommands returns up to limit commands, newest first.
func (db *DB) RecentCommands(ctx context.Context, limit int) ([]CommandRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT command_id, kind, payload, outcome, created_unix_nanos
		   FROM commands
		  ORDER BY created_unix_nanos DESC, rowid DESC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []CommandRecord{}
	for rows.Next() {
		var rec CommandRecord
		var payload string
		var nanos int64
		if err := rows.Scan(&rec.ID, &rec.Kind, &payload, &rec.Outcome, &nanos); err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		rec.CreatedAt = time.Unix(0, nanos).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// CountCommands returns how many commands of kind have been recorded. An
// empty kind counts every command.
func (db *DB) CountCommands(ctx context.Context, kind string) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commands`).Scan(&n)
	} else {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commands WHERE kind = ?`, kind).Scan(&n)
	}
	return n, err
}
