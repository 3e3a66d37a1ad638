package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Schema creates the events table. Run once at startup by the operator or
// via MigrateStore.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
  table_id     TEXT        NOT NULL,
  seq          BIGINT      NOT NULL,
  hand_id      TEXT,
  event_type   TEXT        NOT NULL,
  agent_id     TEXT,
  payload      JSONB,
  occurred_at  TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (table_id, seq)
)`

// PostgresStore persists events to Postgres for replay and audit
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open database handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// MigrateStore applies the events schema
func MigrateStore(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate events schema: %w", err)
	}
	return nil
}

// Append writes one event. Re-appending an existing (table_id, seq) pair is
// a no-op so retries after a lost acknowledgment are safe.
func (s *PostgresStore) Append(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	const q = `
INSERT INTO events (table_id, seq, hand_id, event_type, agent_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (table_id, seq) DO NOTHING`

	_, err = s.db.ExecContext(ctx, q,
		ev.TableID,
		int64(ev.Seq),
		nullable(ev.HandID),
		string(ev.Type),
		nullable(ev.AgentID),
		payload,
		ev.Time,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Since returns events for a table with sequence number greater than seq
func (s *PostgresStore) Since(ctx context.Context, tableID string, seq uint64) ([]Event, error) {
	const q = `
SELECT seq, hand_id, event_type, agent_id, payload, occurred_at
FROM events
WHERE table_id = $1 AND seq > $2
ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, q, tableID, int64(seq))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev      Event
			seq     int64
			handID  sql.NullString
			agentID sql.NullString
			payload []byte
		)
		if err := rows.Scan(&seq, &handID, &ev.Type, &agentID, &payload, &ev.Time); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Seq = uint64(seq)
		ev.TableID = tableID
		ev.HandID = handID.String
		ev.AgentID = agentID.String
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
