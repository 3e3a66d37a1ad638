package game

import (
	"errors"
	"fmt"
)

// FaultKind classifies the user-visible failure taxonomy
type FaultKind string

const (
	// FaultInvalidAction is an illegal move or amount. The hand state is
	// unchanged and the actor's turn is retried.
	FaultInvalidAction FaultKind = "invalid_action"

	// FaultNotYourTurn is an action from any seat other than action_on
	FaultNotYourTurn FaultKind = "not_your_turn"

	// FaultInsufficientFunds is a buy-in or reserve failure
	FaultInsufficientFunds FaultKind = "insufficient_funds"

	// FaultIntegrity is a shuffle reveal mismatch or broken invariant. The
	// hand is voided, committed chips are returned unraked, and the hand is
	// flagged for manual review.
	FaultIntegrity FaultKind = "integrity_fault"
)

// Fault is a structured, user-visible failure
type Fault struct {
	Kind    FaultKind
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func invalidActionf(format string, args ...any) error {
	return &Fault{Kind: FaultInvalidAction, Message: fmt.Sprintf(format, args...)}
}

func notYourTurnf(format string, args ...any) error {
	return &Fault{Kind: FaultNotYourTurn, Message: fmt.Sprintf(format, args...)}
}

func integrityFaultf(format string, args ...any) error {
	return &Fault{Kind: FaultIntegrity, Message: fmt.Sprintf(format, args...)}
}

// IsFault reports whether err is a Fault of the given kind
func IsFault(err error, kind FaultKind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}
