package game

import (
	"github.com/feltworks/holdem/internal/deck"
)

// SeatView is a seat's state as exposed to clients. HoleCards is nil unless
// the viewer owns the seat or the hand reached showdown with the seat live.
type SeatView struct {
	Seat           int      `json:"seat"`
	AgentID        string   `json:"agent_id"`
	Stack          int      `json:"stack"`
	BetThisRound   int      `json:"bet_this_round"`
	TotalCommitted int      `json:"total_committed"`
	Folded         bool     `json:"folded"`
	AllIn          bool     `json:"all_in"`
	HoleCards      []string `json:"hole_cards,omitempty"`
}

// Snapshot is a point-in-time view of a hand for one viewer
type Snapshot struct {
	HandID       string        `json:"hand_id"`
	Number       int           `json:"number"`
	Phase        string        `json:"phase"`
	Button       int           `json:"button"`
	Board        []string      `json:"board"`
	Pot          int           `json:"pot"`
	CurrentBet   int           `json:"current_bet"`
	MinRaiseTo   int           `json:"min_raise_to,omitempty"`
	ActionOn     int           `json:"action_on"`
	Commitment   string        `json:"commitment"`
	Seats        []SeatView    `json:"seats"`
	ValidActions []ValidAction `json:"valid_actions,omitempty"`
}

// Snapshot renders the hand for an agent, redacting every other seat's hole
// cards until showdown. An empty agent ID produces an observer view.
func (h *Hand) Snapshot(forAgent string) Snapshot {
	snap := Snapshot{
		HandID:     h.cfg.HandID,
		Number:     h.cfg.Number,
		Phase:      h.phase.String(),
		Button:     h.cfg.Button,
		Board:      deck.Strings(h.board),
		Pot:        h.Pot(),
		CurrentBet: h.currentBet,
		ActionOn:   h.actionOn,
		Commitment: h.commitment.String(),
	}
	if h.phase.Betting() {
		snap.MinRaiseTo = h.MinRaiseTo()
	}

	atShowdown := h.phase == PhaseShowdown || (h.phase == PhaseSettled && h.result != nil && h.result.Seed != "")

	for _, n := range h.order {
		s := h.seats[n]
		view := SeatView{
			Seat:           n,
			AgentID:        s.AgentID,
			Stack:          s.Stack,
			BetThisRound:   s.BetThisRound,
			TotalCommitted: s.TotalCommitted,
			Folded:         s.Folded,
			AllIn:          s.AllIn,
		}
		if s.AgentID == forAgent && forAgent != "" || (atShowdown && !s.Folded) {
			view.HoleCards = deck.Strings(s.HoleCards[:])
		}
		snap.Seats = append(snap.Seats, view)
		if n == h.actionOn && s.AgentID == forAgent && forAgent != "" {
			snap.ValidActions = h.ValidActions(n)
		}
	}
	return snap
}
