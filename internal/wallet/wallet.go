// Package wallet defines the ledger contract the engine honors for all
// monetary operations: two-phase debit on buy-in (reserve then commit) and
// idempotent credit on payout. The engine never assumes a ledger call's
// side effect happened without a positive acknowledgment, and never
// re-applies without an idempotency key.
package wallet

import (
	"context"
	"errors"
)

// ErrInsufficientFunds is returned by Reserve when the agent's balance
// cannot cover the requested amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrUnknownReservation is returned by Commit or Release for a reservation
// that does not exist or was already finalized.
var ErrUnknownReservation = errors.New("unknown reservation")

// ReservationID identifies a pending two-phase debit
type ReservationID string

// Ledger is the wallet service contract consumed by the engine. Credit must
// be idempotent: replaying a key returns success without moving money twice.
type Ledger interface {
	// Reserve places a hold on the agent's balance. The money is debited
	// but not yet released to the table until Commit.
	Reserve(ctx context.Context, agentID string, amount int) (ReservationID, error)

	// Commit finalizes a reservation
	Commit(ctx context.Context, id ReservationID) error

	// Release cancels a reservation and returns the held amount
	Release(ctx context.Context, id ReservationID) error

	// Credit adds funds to an agent's balance. Safe to retry with the same
	// idempotency key.
	Credit(ctx context.Context, agentID string, amount int, idempotencyKey string) error

	// Balance returns the agent's available balance
	Balance(ctx context.Context, agentID string) (int, error)
}

// Retry runs fn up to attempts times, stopping early on success, context
// cancellation, or a non-transient ledger error. Monetary operations are
// retried because fn is required to be idempotent.
func Retry(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrUnknownReservation) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return err
}
