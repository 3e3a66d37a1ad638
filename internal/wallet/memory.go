package wallet

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger is an in-process Ledger used by tests and single-node
// deployments. It applies the same semantics as the Postgres ledger:
// two-phase reserve/commit and idempotent credits.
type MemoryLedger struct {
	mu           sync.Mutex
	balances     map[string]int
	reservations map[ReservationID]reservation
	applied      map[string]int // idempotency key -> credited amount
	nextID       int
}

type reservation struct {
	agentID string
	amount  int
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:     make(map[string]int),
		reservations: make(map[ReservationID]reservation),
		applied:      make(map[string]int),
	}
}

// Deposit funds an agent directly. Deposits arrive from outside the engine;
// this exists for tests and local development.
func (m *MemoryLedger) Deposit(agentID string, amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[agentID] += amount
}

// Reserve places a hold on the agent's balance
func (m *MemoryLedger) Reserve(ctx context.Context, agentID string, amount int) (ReservationID, error) {
	if amount <= 0 {
		return "", fmt.Errorf("reserve amount must be positive, got %d", amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balances[agentID] < amount {
		return "", fmt.Errorf("agent %s: %w", agentID, ErrInsufficientFunds)
	}

	m.balances[agentID] -= amount
	m.nextID++
	id := ReservationID(fmt.Sprintf("rsv-%d", m.nextID))
	m.reservations[id] = reservation{agentID: agentID, amount: amount}
	return id, nil
}

// Commit finalizes a reservation
func (m *MemoryLedger) Commit(ctx context.Context, id ReservationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reservations[id]; !ok {
		return ErrUnknownReservation
	}
	delete(m.reservations, id)
	return nil
}

// Release cancels a reservation and returns the held funds
func (m *MemoryLedger) Release(ctx context.Context, id ReservationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok {
		return ErrUnknownReservation
	}
	delete(m.reservations, id)
	m.balances[r.agentID] += r.amount
	return nil
}

// Credit adds funds idempotently: a replayed key is acknowledged without
// moving money again.
func (m *MemoryLedger) Credit(ctx context.Context, agentID string, amount int, idempotencyKey string) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}
	if idempotencyKey == "" {
		return fmt.Errorf("credit requires an idempotency key")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.applied[idempotencyKey]; ok {
		if prev != amount {
			return fmt.Errorf("idempotency key %q replayed with different amount (%d != %d)", idempotencyKey, amount, prev)
		}
		return nil
	}

	m.applied[idempotencyKey] = amount
	m.balances[agentID] += amount
	return nil
}

// Balance returns the agent's available balance
func (m *MemoryLedger) Balance(ctx context.Context, agentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[agentID], nil
}

var _ Ledger = (*MemoryLedger)(nil)
