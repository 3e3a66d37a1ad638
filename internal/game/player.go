package game

import "github.com/feltworks/holdem/internal/deck"

// HandSeat is one seat's state within a hand. The stack here is owned by
// the hand while it runs; the table copies it back at completion.
type HandSeat struct {
	Seat           int
	AgentID        string
	Stack          int
	HoleCards      [2]deck.Card
	BetThisRound   int
	TotalCommitted int
	Folded         bool
	AllIn          bool
}

// CanAct reports whether the seat can still take actions
func (s *HandSeat) CanAct() bool {
	return !s.Folded && !s.AllIn
}

// commit moves chips from the stack into the current bet. Callers validate
// the amount first; committing more than the stack is a programming error.
func (s *HandSeat) commit(amount int) {
	if amount > s.Stack {
		panic("commit exceeds stack")
	}
	s.Stack -= amount
	s.BetThisRound += amount
	s.TotalCommitted += amount
	if s.Stack == 0 {
		s.AllIn = true
	}
}
