// Package events provides the append-only per-table event log.
//
// Every accepted action, phase transition, deal, and settlement outcome is
// one event. The sequence number is monotonic per table and is the sole
// ordering authority; wall-clock timestamps are advisory. The log feeds the
// external collusion detector and supports replay and audit, so each hand's
// commitment/reveal pair is recorded alongside the deal order it certifies.
package events

import (
	"context"
	"time"
)

// Type identifies a kind of event
type Type string

const (
	TypeHandStart    Type = "hand_start"
	TypeBlindPosted  Type = "blind_posted"
	TypePlayerAction Type = "player_action"
	TypeStreetDealt  Type = "street_dealt"
	TypeShowdown     Type = "showdown"
	TypeSettlement   Type = "settlement"
	TypeSeedReveal   Type = "seed_reveal"
	TypeHandVoid     Type = "hand_void"
	TypePlayerJoin   Type = "player_join"
	TypePlayerLeave  Type = "player_leave"
	TypeChipsAdded   Type = "chips_added"
)

// Event is one entry in a table's append-only log
type Event struct {
	Seq     uint64         `json:"seq"`
	TableID string         `json:"table_id"`
	HandID  string         `json:"hand_id,omitempty"`
	Type    Type           `json:"type"`
	AgentID string         `json:"agent_id,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Time    time.Time      `json:"time"`
}

// Store is a durable backend for event persistence. Append must be atomic;
// Since must return events ordered by sequence number.
type Store interface {
	Append(ctx context.Context, ev Event) error
	Since(ctx context.Context, tableID string, seq uint64) ([]Event, error)
}
