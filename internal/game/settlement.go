package game

import (
	"context"
	"fmt"
	"sort"

	"github.com/feltworks/holdem/internal/deck"
	"github.com/feltworks/holdem/internal/evaluator"
	"github.com/feltworks/holdem/internal/events"
	"github.com/feltworks/holdem/internal/shuffle"
)

// RakeConfig controls the house cut taken at settlement
type RakeConfig struct {
	Rate         float64 // fraction of the pot, e.g. 0.05
	Cap          int     // maximum rake per hand, 0 means no cap
	Threshold    int     // pots below this are not raked
	NoFlopNoDrop bool    // no rake when the hand ends before the flop
}

// rake returns the cut for a pot of the given size
func (c RakeConfig) rake(pot int) int {
	if c.Rate <= 0 || pot < c.Threshold {
		return 0
	}
	r := int(float64(pot) * c.Rate)
	if c.Cap > 0 && r > c.Cap {
		r = c.Cap
	}
	return r
}

// LedgerInstruction instructs the wallet layer after settlement. Payouts are
// applied to seat stacks in-engine; instructions exist so the wallet ledger
// and the audit trail agree on where every chip went.
type LedgerInstruction struct {
	Kind           string `json:"kind"` // "payout" or "rake"
	AgentID        string `json:"agent_id,omitempty"`
	Amount         int    `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

// PotShare records one seat's winnings from one pot layer
type PotShare struct {
	Seat    int    `json:"seat"`
	AgentID string `json:"agent_id"`
	Amount  int    `json:"amount"`
	Pot     int    `json:"pot"` // pot layer index, 0 is the main pot
}

// Result is a settled hand's outcome
type Result struct {
	HandID       string              `json:"hand_id"`
	Payouts      map[int]int         `json:"payouts"` // seat -> total winnings
	Distribution []PotShare          `json:"distribution"`
	Rake         int                 `json:"rake"`
	Instructions []LedgerInstruction `json:"instructions"`
	Seed         string              `json:"seed,omitempty"` // revealed only at showdown
}

// settleFoldOut pays the whole pot to the last seat standing. Hole cards
// stay private and the deck seed is not revealed.
func (h *Hand) settleFoldOut(ctx context.Context) error {
	var winner *HandSeat
	for _, n := range h.order {
		if !h.seats[n].Folded {
			winner = h.seats[n]
			break
		}
	}
	if winner == nil {
		return h.void(ctx, "all seats folded")
	}

	pot := h.Pot()

	// The uncalled portion of the winner's last bet was never contested;
	// it goes back unraked.
	maxOther := 0
	for _, n := range h.order {
		if s := h.seats[n]; s != winner && s.TotalCommitted > maxOther {
			maxOther = s.TotalCommitted
		}
	}
	contested := pot
	if winner.TotalCommitted > maxOther {
		contested -= winner.TotalCommitted - maxOther
	}

	rake := h.cfg.Rake.rake(contested)
	if h.cfg.Rake.NoFlopNoDrop && len(h.board) < 3 {
		rake = 0
	}
	payout := pot - rake

	res := &Result{
		HandID:  h.cfg.HandID,
		Payouts: map[int]int{winner.Seat: payout},
		Distribution: []PotShare{
			{Seat: winner.Seat, AgentID: winner.AgentID, Amount: payout, Pot: 0},
		},
		Rake: rake,
	}
	return h.finish(ctx, res, nil)
}

// settleShowdown evaluates every live hand against the board, splits the
// layered pots among the best hands, rakes the main pot, and reveals the
// deck seed so observers can verify the deal.
func (h *Hand) settleShowdown(ctx context.Context) error {
	h.phase = PhaseShowdown
	h.actionOn = -1
	h.turn++

	if len(h.board) != 5 {
		return h.void(ctx, fmt.Sprintf("showdown with %d board cards", len(h.board)))
	}

	seed := h.dealer.Reveal()
	if err := shuffle.Verify(h.commitment, seed, h.dealer.Dealt()); err != nil {
		if verr := h.void(ctx, fmt.Sprintf("deck integrity: %v", err)); verr != nil {
			return verr
		}
		return integrityFaultf("deck reveal does not match commitment: %v", err)
	}

	ranks := make(map[int]evaluator.Rank)
	showdown := make([]map[string]any, 0)
	for _, n := range h.order {
		s := h.seats[n]
		if s.Folded {
			continue
		}
		r, err := evaluator.Evaluate(s.HoleCards, h.board)
		if err != nil {
			if verr := h.void(ctx, fmt.Sprintf("evaluate seat %d: %v", n, err)); verr != nil {
				return verr
			}
			return integrityFaultf("evaluate seat %d: %v", n, err)
		}
		ranks[n] = r
		showdown = append(showdown, map[string]any{
			"seat":     n,
			"agent_id": s.AgentID,
			"cards":    deck.Strings(s.HoleCards[:]),
			"rank":     uint32(r),
			"hand":     r.String(),
		})
	}

	pots := layeredPots(h.seats, h.order)

	// Rake comes off the main pot only, and is capped by it
	rake := h.cfg.Rake.rake(h.Pot())
	if len(pots) > 0 && rake > pots[0].Amount {
		rake = pots[0].Amount
	}

	res := &Result{
		HandID:  h.cfg.HandID,
		Payouts: make(map[int]int),
		Rake:    rake,
		Seed:    seed.String(),
	}

	for i, pot := range pots {
		amount := pot.Amount
		if i == 0 {
			amount -= rake
		}
		if amount <= 0 {
			continue
		}

		best := evaluator.Rank(0)
		var winners []int
		for _, n := range pot.Eligible {
			r := ranks[n]
			if r > best {
				best = r
				winners = []int{n}
			} else if r == best {
				winners = append(winners, n)
			}
		}
		if len(winners) == 0 {
			return h.void(ctx, fmt.Sprintf("pot %d has no eligible winner", i))
		}

		share := amount / len(winners)
		odd := amount % len(winners)
		// Odd chips go to the first winner clockwise from the button
		for _, n := range h.clockwiseFromButton(winners) {
			w := share
			if odd > 0 {
				w++
				odd--
			}
			if w == 0 {
				continue
			}
			res.Payouts[n] += w
			res.Distribution = append(res.Distribution, PotShare{
				Seat: n, AgentID: h.seats[n].AgentID, Amount: w, Pot: i,
			})
		}
	}

	return h.finish(ctx, res, showdown)
}

// clockwiseFromButton orders seats by distance clockwise from the button
func (h *Hand) clockwiseFromButton(seats []int) []int {
	out := make([]int, len(seats))
	copy(out, seats)
	dist := func(n int) int {
		idx := sort.SearchInts(h.order, n)
		btn := sort.SearchInts(h.order, h.cfg.Button)
		return ((idx - btn - 1) + len(h.order)) % len(h.order)
	}
	sort.Slice(out, func(i, j int) bool { return dist(out[i]) < dist(out[j]) })
	return out
}

// finish verifies chip conservation, applies payouts to seat stacks, builds
// ledger instructions, and emits the settlement events.
func (h *Hand) finish(ctx context.Context, res *Result, showdown []map[string]any) error {
	// Conservation: every committed chip is either paid out or raked
	paid := res.Rake
	for _, amt := range res.Payouts {
		paid += amt
	}
	if paid != h.Pot() {
		h.logger.Error("settlement imbalance", "pot", h.Pot(), "distributed", paid)
		if err := h.void(ctx, fmt.Sprintf("settlement imbalance: pot %d, distributed %d", h.Pot(), paid)); err != nil {
			return err
		}
		return integrityFaultf("settlement imbalance: pot %d, distributed %d", h.Pot(), paid)
	}

	for seat, amt := range res.Payouts {
		s := h.seats[seat]
		s.Stack += amt
		res.Instructions = append(res.Instructions, LedgerInstruction{
			Kind:           "payout",
			AgentID:        s.AgentID,
			Amount:         amt,
			IdempotencyKey: fmt.Sprintf("%s:payout:%d", h.cfg.HandID, seat),
		})
	}
	if res.Rake > 0 {
		res.Instructions = append(res.Instructions, LedgerInstruction{
			Kind:           "rake",
			Amount:         res.Rake,
			IdempotencyKey: fmt.Sprintf("%s:rake", h.cfg.HandID),
		})
	}
	sort.Slice(res.Instructions, func(i, j int) bool {
		return res.Instructions[i].IdempotencyKey < res.Instructions[j].IdempotencyKey
	})

	if showdown != nil {
		if _, err := h.append(ctx, events.TypeShowdown, "", map[string]any{
			"board": deck.Strings(h.board),
			"hands": showdown,
		}); err != nil {
			return err
		}
	}

	payouts := make([]map[string]any, 0, len(res.Distribution))
	for _, d := range res.Distribution {
		payouts = append(payouts, map[string]any{
			"seat": d.Seat, "agent_id": d.AgentID, "amount": d.Amount, "pot": d.Pot,
		})
	}
	if _, err := h.append(ctx, events.TypeSettlement, "", map[string]any{
		"pot":     h.Pot(),
		"rake":    res.Rake,
		"payouts": payouts,
	}); err != nil {
		return err
	}

	if res.Seed != "" {
		if _, err := h.append(ctx, events.TypeSeedReveal, "", map[string]any{
			"commitment": h.commitment.String(),
			"seed":       res.Seed,
			"dealt":      deck.Strings(h.dealer.Dealt()),
		}); err != nil {
			return err
		}
	}

	h.phase = PhaseSettled
	h.actionOn = -1
	h.turn++
	h.result = res
	h.logger.Info("hand settled", "pot", h.Pot(), "rake", res.Rake)
	return nil
}

// Void cancels the hand and returns every seat's committed chips unraked
func (h *Hand) Void(ctx context.Context, reason string) error {
	return h.void(ctx, reason)
}

func (h *Hand) void(ctx context.Context, reason string) error {
	if h.phase == PhaseSettled || h.phase == PhaseVoid {
		return nil
	}
	refunds := make([]map[string]any, 0, len(h.order))
	for _, n := range h.order {
		s := h.seats[n]
		if s.TotalCommitted > 0 {
			s.Stack += s.TotalCommitted
			refunds = append(refunds, map[string]any{
				"seat": n, "agent_id": s.AgentID, "amount": s.TotalCommitted,
			})
			s.TotalCommitted = 0
			s.BetThisRound = 0
		}
	}
	h.phase = PhaseVoid
	h.actionOn = -1
	h.turn++
	h.voidReason = reason
	h.logger.Warn("hand voided", "reason", reason)
	if _, err := h.append(ctx, events.TypeHandVoid, "", map[string]any{
		"reason": reason, "refunds": refunds,
	}); err != nil {
		return err
	}
	return nil
}
