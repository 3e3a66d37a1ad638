package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Schema creates the ledger tables
const Schema = `
CREATE TABLE IF NOT EXISTS wallets (
  agent_id TEXT PRIMARY KEY,
  balance  BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
);
CREATE TABLE IF NOT EXISTS reservations (
  id       BIGSERIAL PRIMARY KEY,
  agent_id TEXT   NOT NULL REFERENCES wallets(agent_id),
  amount   BIGINT NOT NULL CHECK (amount > 0)
);
CREATE TABLE IF NOT EXISTS ledger_entries (
  idempotency_key TEXT PRIMARY KEY,
  agent_id        TEXT   NOT NULL,
  amount          BIGINT NOT NULL
)`

// PostgresLedger is a Ledger backed by Postgres. Balance mutations use
// row-level locking so concurrent tables settling against the same agent
// serialize on the wallet row.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger creates a ledger over an open database handle
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Migrate applies the ledger schema
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate wallet schema: %w", err)
	}
	return nil
}

// Reserve holds funds against the agent's balance
func (l *PostgresLedger) Reserve(ctx context.Context, agentID string, amount int) (ReservationID, error) {
	if amount <= 0 {
		return "", fmt.Errorf("reserve amount must be positive, got %d", amount)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin reserve: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM wallets WHERE agent_id = $1 FOR UPDATE`, agentID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("agent %s: %w", agentID, ErrInsufficientFunds)
	}
	if err != nil {
		return "", fmt.Errorf("lock wallet: %w", err)
	}
	if balance < int64(amount) {
		return "", fmt.Errorf("agent %s: %w", agentID, ErrInsufficientFunds)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance - $2 WHERE agent_id = $1`, agentID, amount); err != nil {
		return "", fmt.Errorf("debit wallet: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO reservations (agent_id, amount) VALUES ($1, $2) RETURNING id`,
		agentID, amount).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit reserve: %w", err)
	}
	return ReservationID(fmt.Sprintf("%d", id)), nil
}

// Commit finalizes a reservation
func (l *PostgresLedger) Commit(ctx context.Context, id ReservationID) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownReservation
	}
	return nil
}

// Release cancels a reservation and returns the held funds
func (l *PostgresLedger) Release(ctx context.Context, id ReservationID) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin release: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var agentID string
	var amount int64
	err = tx.QueryRowContext(ctx,
		`DELETE FROM reservations WHERE id = $1 RETURNING agent_id, amount`, string(id)).
		Scan(&agentID, &amount)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnknownReservation
	}
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance + $2 WHERE agent_id = $1`, agentID, amount); err != nil {
		return fmt.Errorf("refund wallet: %w", err)
	}
	return tx.Commit()
}

// Credit adds funds idempotently. The ledger_entries primary key makes a
// replayed idempotency key a no-op.
func (l *PostgresLedger) Credit(ctx context.Context, agentID string, amount int, idempotencyKey string) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}
	if idempotencyKey == "" {
		return fmt.Errorf("credit requires an idempotency key")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (idempotency_key, agent_id, amount) VALUES ($1, $2, $3)`,
		idempotencyKey, agentID, amount)
	if isUniqueViolation(err) {
		// Already applied; acknowledge without moving money again
		return nil
	}
	if err != nil {
		return fmt.Errorf("record ledger entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO wallets (agent_id, balance) VALUES ($1, $2)
ON CONFLICT (agent_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance`,
		agentID, amount)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return tx.Commit()
}

// Balance returns the agent's available balance
func (l *PostgresLedger) Balance(ctx context.Context, agentID string) (int, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM wallets WHERE agent_id = $1`, agentID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return int(balance), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

var _ Ledger = (*PostgresLedger)(nil)
