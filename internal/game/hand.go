// Package game implements the per-hand betting state machine for No-Limit
// Texas Hold'em: turn order, legal actions, pot and side-pot accounting,
// settlement, and rake. All mutation happens through a table's single
// authority; the package itself holds no locks.
package game

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/feltworks/holdem/internal/deck"
	"github.com/feltworks/holdem/internal/events"
	"github.com/feltworks/holdem/internal/shuffle"
)

// SeatPlayer describes a participant at hand start
type SeatPlayer struct {
	Seat    int
	AgentID string
	Stack   int
}

// Config parameterizes a hand
type Config struct {
	HandID     string
	TableID    string
	Number     int // hand number at this table
	Button     int // seat number holding the button
	SmallBlind int
	BigBlind   int
	Rake       RakeConfig
	Entropy    io.Reader   // nil means crypto/rand
	Logger     *log.Logger // nil means a discarding logger
}

// Hand is one betting episode. Chips conservation holds across the hand's
// lifetime: committed chips plus remaining stacks equal the starting stacks,
// and rake is deducted exactly once at settlement.
type Hand struct {
	cfg    Config
	logger *log.Logger
	events *events.Log

	phase      Phase
	seats      map[int]*HandSeat
	order      []int // participating seat numbers, ascending
	board      []deck.Card
	dealer     *shuffle.Dealer
	commitment shuffle.Commitment

	currentBet int
	minRaise   int // last raise increment; min-raise-to is currentBet+minRaise
	actionOn   int // seat number, -1 when no action is pending
	acted      map[int]bool
	noRaise    map[int]bool // seats barred from raising after a short all-in

	turn         uint64 // bumps whenever actionOn changes; guards stale timeouts
	initialTotal int
	result       *Result
	voidReason   string
}

// New starts a hand: commits to a shuffle, deals hole cards, posts blinds,
// and opens preflop betting. Requires at least two players.
func New(ctx context.Context, cfg Config, players []SeatPlayer, eventLog *events.Log) (*Hand, error) {
	if len(players) < 2 || len(players) > 10 {
		return nil, fmt.Errorf("hand requires 2-10 players, got %d", len(players))
	}
	if cfg.SmallBlind <= 0 || cfg.BigBlind < cfg.SmallBlind {
		return nil, fmt.Errorf("invalid blinds %d/%d", cfg.SmallBlind, cfg.BigBlind)
	}
	if cfg.Entropy == nil {
		cfg.Entropy = rand.Reader
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}

	h := &Hand{
		cfg:      cfg,
		logger:   cfg.Logger.WithPrefix("hand").With("hand_id", cfg.HandID),
		events:   eventLog,
		phase:    PhasePreflop,
		seats:    make(map[int]*HandSeat, len(players)),
		acted:    make(map[int]bool),
		noRaise:  make(map[int]bool),
		actionOn: -1,
	}

	seatInfo := make([]map[string]any, 0, len(players))
	seenAgents := make(map[string]bool)
	for _, p := range players {
		if p.Stack <= 0 {
			return nil, fmt.Errorf("seat %d has no chips", p.Seat)
		}
		if _, dup := h.seats[p.Seat]; dup {
			return nil, fmt.Errorf("duplicate seat %d", p.Seat)
		}
		if seenAgents[p.AgentID] {
			return nil, fmt.Errorf("agent %s seated twice", p.AgentID)
		}
		seenAgents[p.AgentID] = true
		h.seats[p.Seat] = &HandSeat{Seat: p.Seat, AgentID: p.AgentID, Stack: p.Stack}
		h.order = append(h.order, p.Seat)
		h.initialTotal += p.Stack
		seatInfo = append(seatInfo, map[string]any{
			"seat": p.Seat, "agent_id": p.AgentID, "stack": p.Stack,
		})
	}
	sort.Ints(h.order)

	if _, ok := h.seats[cfg.Button]; !ok {
		return nil, fmt.Errorf("button seat %d is not in the hand", cfg.Button)
	}

	dealer, err := shuffle.NewDealer(cfg.Entropy)
	if err != nil {
		return nil, fmt.Errorf("commit shuffle: %w", err)
	}
	h.dealer = dealer
	h.commitment = dealer.Commitment()

	// The commitment is published before any card is dealt
	if _, err := h.append(ctx, events.TypeHandStart, "", map[string]any{
		"number":      cfg.Number,
		"button":      cfg.Button,
		"small_blind": cfg.SmallBlind,
		"big_blind":   cfg.BigBlind,
		"seats":       seatInfo,
		"commitment":  h.commitment.String(),
	}); err != nil {
		return nil, err
	}

	// Hole cards: two consecutive cards per seat in ascending seat order.
	// The fixed deal order is what makes the reveal verifiable.
	for _, n := range h.order {
		cards, err := h.dealer.Deal(2)
		if err != nil {
			return nil, err
		}
		h.seats[n].HoleCards = [2]deck.Card{cards[0], cards[1]}
	}

	if err := h.postBlinds(ctx); err != nil {
		return nil, err
	}

	h.currentBet = cfg.BigBlind
	h.minRaise = cfg.BigBlind

	first := h.firstToActPreflop()
	if h.seats[first].CanAct() {
		h.actionOn = first
	} else {
		h.actionOn = h.nextActionable(first)
	}
	h.turn++

	// Blinds can put everyone all-in; the board runs out with no betting
	if h.actionOn == -1 {
		if err := h.nextStreet(ctx); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// ID returns the hand identifier
func (h *Hand) ID() string { return h.cfg.HandID }

// Number returns the hand number at its table
func (h *Hand) Number() int { return h.cfg.Number }

// Phase returns the current phase
func (h *Hand) Phase() Phase { return h.phase }

// Board returns the community cards dealt so far
func (h *Hand) Board() []deck.Card {
	out := make([]deck.Card, len(h.board))
	copy(out, h.board)
	return out
}

// ActionOn returns the seat due to act, or -1
func (h *Hand) ActionOn() int { return h.actionOn }

// Turn returns the action turn counter. A timeout scheduled for turn t must
// be ignored if the counter has moved on.
func (h *Hand) Turn() uint64 { return h.turn }

// Pot returns the total chips committed to the hand
func (h *Hand) Pot() int {
	total := 0
	for _, s := range h.seats {
		total += s.TotalCommitted
	}
	return total
}

// CurrentBet returns the bet to match this round
func (h *Hand) CurrentBet() int { return h.currentBet }

// MinRaiseTo returns the minimum total a raise must reach
func (h *Hand) MinRaiseTo() int { return h.currentBet + h.minRaise }

// Commitment returns the published shuffle commitment
func (h *Hand) Commitment() shuffle.Commitment { return h.commitment }

// Seat returns a seat's hand state, or nil if not in the hand
func (h *Hand) Seat(n int) *HandSeat { return h.seats[n] }

// Seats returns participating seat numbers in ascending order
func (h *Hand) Seats() []int {
	out := make([]int, len(h.order))
	copy(out, h.order)
	return out
}

// SeatOf returns the seat occupied by an agent, or -1
func (h *Hand) SeatOf(agentID string) int {
	for _, n := range h.order {
		if h.seats[n].AgentID == agentID {
			return n
		}
	}
	return -1
}

// Result returns the settlement result once the hand is settled
func (h *Hand) Result() *Result { return h.result }

// VoidReason returns why the hand was voided, if it was
func (h *Hand) VoidReason() string { return h.voidReason }

func (h *Hand) append(ctx context.Context, typ events.Type, agentID string, payload map[string]any) (events.Event, error) {
	return h.events.Append(ctx, h.cfg.HandID, typ, agentID, payload)
}

// postBlinds injects the forced small and big blind bets
func (h *Hand) postBlinds(ctx context.Context) error {
	sb, bb := h.blindSeats()

	for _, blind := range []struct {
		seat   int
		amount int
		kind   string
	}{
		{sb, h.cfg.SmallBlind, "small_blind"},
		{bb, h.cfg.BigBlind, "big_blind"},
	} {
		s := h.seats[blind.seat]
		paid := min(blind.amount, s.Stack)
		s.commit(paid)
		if _, err := h.append(ctx, events.TypeBlindPosted, s.AgentID, map[string]any{
			"seat": blind.seat, "kind": blind.kind, "amount": paid,
		}); err != nil {
			return err
		}
	}
	return nil
}

// blindSeats returns (smallBlind, bigBlind) seat numbers. Heads-up the
// button posts the small blind.
func (h *Hand) blindSeats() (int, int) {
	if len(h.order) == 2 {
		return h.cfg.Button, h.nextSeat(h.cfg.Button)
	}
	sb := h.nextSeat(h.cfg.Button)
	return sb, h.nextSeat(sb)
}

// firstToActPreflop returns the seat opening the preflop betting: the small
// blind heads-up, otherwise the seat after the big blind.
func (h *Hand) firstToActPreflop() int {
	if len(h.order) == 2 {
		return h.cfg.Button
	}
	_, bb := h.blindSeats()
	return h.nextSeat(bb)
}

// nextSeat returns the next participating seat clockwise from n
func (h *Hand) nextSeat(n int) int {
	idx := sort.SearchInts(h.order, n)
	for i := 1; i <= len(h.order); i++ {
		cand := h.order[(idx+i)%len(h.order)]
		if cand != n {
			return cand
		}
	}
	return n
}

// nextActionable returns the next seat clockwise from n that can act, or -1
func (h *Hand) nextActionable(n int) int {
	idx := sort.SearchInts(h.order, n)
	for i := 1; i <= len(h.order); i++ {
		cand := h.order[(idx+i)%len(h.order)]
		if h.seats[cand].CanAct() {
			return cand
		}
	}
	return -1
}

// ValidAction describes one legal action for the acting seat. Min and Max
// bound the raise-to total for bet and raise.
type ValidAction struct {
	Type ActionType `json:"type"`
	Min  int        `json:"min,omitempty"`
	Max  int        `json:"max,omitempty"`
}

// ValidActions computes the legal action set for a seat. Empty unless the
// hand is in a betting phase and it is the seat's turn.
func (h *Hand) ValidActions(seat int) []ValidAction {
	if !h.phase.Betting() || seat != h.actionOn {
		return nil
	}
	s := h.seats[seat]
	if s == nil || !s.CanAct() {
		return nil
	}

	actions := []ValidAction{{Type: ActionFold}}
	toCall := min(h.currentBet-s.BetThisRound, s.Stack)
	maxTo := s.Stack + s.BetThisRound

	if h.currentBet == s.BetThisRound {
		actions = append(actions, ValidAction{Type: ActionCheck})
	}
	if h.currentBet > s.BetThisRound && s.Stack > 0 {
		actions = append(actions, ValidAction{Type: ActionCall, Min: toCall, Max: toCall})
	}
	if h.currentBet == 0 && s.Stack > 0 {
		actions = append(actions, ValidAction{Type: ActionBet, Min: min(h.cfg.BigBlind, maxTo), Max: maxTo})
	}
	if h.currentBet > 0 && s.Stack > toCall && !h.noRaise[seat] {
		actions = append(actions, ValidAction{Type: ActionRaise, Min: min(h.MinRaiseTo(), maxTo), Max: maxTo})
	}
	if s.Stack > 0 && !(h.noRaise[seat] && maxTo > h.currentBet) {
		actions = append(actions, ValidAction{Type: ActionAllIn, Min: maxTo, Max: maxTo})
	}
	return actions
}

// Apply processes an action from a seat. For bet and raise the amount is
// the raise-to total for the round; for other actions it is ignored. On any
// validation failure the hand state is untouched and the actor's turn is
// retried.
func (h *Hand) Apply(ctx context.Context, seat int, action ActionType, amount int) error {
	if !h.phase.Betting() {
		return invalidActionf("hand is %s, not accepting actions", h.phase)
	}
	s := h.seats[seat]
	if s == nil {
		return invalidActionf("seat %d is not in the hand", seat)
	}
	if seat != h.actionOn {
		return notYourTurnf("action is on seat %d", h.actionOn)
	}
	if !s.CanAct() {
		return invalidActionf("seat %d cannot act", seat)
	}

	toCall := min(h.currentBet-s.BetThisRound, s.Stack)
	maxTo := s.Stack + s.BetThisRound
	paid := 0

	// Validate everything before mutating anything
	switch action {
	case ActionFold:

	case ActionCheck:
		if h.currentBet != s.BetThisRound {
			return invalidActionf("cannot check facing a bet of %d", h.currentBet)
		}

	case ActionCall:
		if toCall <= 0 {
			return invalidActionf("nothing to call")
		}

	case ActionBet:
		if h.currentBet != 0 {
			return invalidActionf("cannot bet facing a bet, raise instead")
		}
		if amount > maxTo {
			return invalidActionf("bet %d exceeds stack, maximum %d", amount, maxTo)
		}
		if amount < h.cfg.BigBlind && amount != maxTo {
			return invalidActionf("bet %d below minimum %d", amount, h.cfg.BigBlind)
		}
		if amount <= 0 {
			return invalidActionf("bet must be positive")
		}

	case ActionRaise:
		if h.currentBet == 0 {
			return invalidActionf("nothing to raise, bet instead")
		}
		if h.noRaise[seat] {
			return invalidActionf("betting was not reopened for seat %d", seat)
		}
		if amount > maxTo {
			return invalidActionf("raise to %d exceeds stack, maximum %d", amount, maxTo)
		}
		if amount <= h.currentBet {
			return invalidActionf("raise to %d does not exceed current bet %d", amount, h.currentBet)
		}
		if amount < h.MinRaiseTo() && amount != maxTo {
			return invalidActionf("raise to %d below minimum %d", amount, h.MinRaiseTo())
		}

	case ActionAllIn:
		if s.Stack <= 0 {
			return invalidActionf("no chips to move all-in")
		}
		if h.noRaise[seat] && maxTo > h.currentBet {
			return invalidActionf("betting was not reopened for seat %d, call or fold", seat)
		}

	default:
		return invalidActionf("unknown action")
	}

	// Mutate
	switch action {
	case ActionFold:
		s.Folded = true

	case ActionCheck:

	case ActionCall:
		s.commit(toCall)
		paid = toCall

	case ActionBet:
		paid = amount - s.BetThisRound
		s.commit(paid)
		h.minRaise = amount
		h.currentBet = amount
		h.reopenBetting(seat)

	case ActionRaise:
		paid = amount - s.BetThisRound
		s.commit(paid)
		h.applyRaiseTo(seat, amount)

	case ActionAllIn:
		paid = s.Stack
		newTo := s.BetThisRound + paid
		s.commit(paid)
		if newTo > h.currentBet {
			h.applyRaiseTo(seat, newTo)
		}
	}

	h.acted[seat] = true

	if _, err := h.append(ctx, events.TypePlayerAction, s.AgentID, map[string]any{
		"seat":            seat,
		"action":          action.String(),
		"paid":            paid,
		"bet_this_round":  s.BetThisRound,
		"total_committed": s.TotalCommitted,
		"stack":           s.Stack,
		"pot":             h.Pot(),
	}); err != nil {
		return err
	}

	return h.advance(ctx)
}

// applyRaiseTo updates betting state for a raise to newTo. A full raise
// (increment at least the previous raise) reopens betting for everyone; a
// short all-in raise does not reopen for seats that already matched the
// previous bet.
func (h *Hand) applyRaiseTo(seat, newTo int) {
	increment := newTo - h.currentBet
	if increment >= h.minRaise {
		h.minRaise = increment
		h.currentBet = newTo
		h.reopenBetting(seat)
		return
	}

	// Short all-in: current bet moves, min raise does not, and seats that
	// already acted may only call or fold.
	h.currentBet = newTo
	for _, n := range h.order {
		if n != seat && h.seats[n].CanAct() && h.acted[n] {
			h.noRaise[n] = true
		}
	}
}

// reopenBetting clears acted flags after a full raise so every other live
// seat gets another turn.
func (h *Hand) reopenBetting(aggressor int) {
	for _, n := range h.order {
		if n != aggressor {
			delete(h.acted, n)
		}
		delete(h.noRaise, n)
	}
}

// ForceFold folds a seat immediately regardless of turn order. Used for
// seats that left the table or timed out with no legal check.
func (h *Hand) ForceFold(ctx context.Context, seat int) error {
	s := h.seats[seat]
	if s == nil || s.Folded || !h.phase.Betting() {
		return nil
	}

	wasActing := seat == h.actionOn
	s.Folded = true
	h.acted[seat] = true

	if _, err := h.append(ctx, events.TypePlayerAction, s.AgentID, map[string]any{
		"seat": seat, "action": ActionFold.String(), "forced": true, "pot": h.Pot(),
	}); err != nil {
		return err
	}

	if wasActing {
		return h.advance(ctx)
	}
	// An out-of-turn fold can complete the round or the hand
	if h.countNonFolded() == 1 {
		return h.settleFoldOut(ctx)
	}
	if h.roundComplete() {
		return h.nextStreet(ctx)
	}
	return nil
}

// AutoAct applies the timeout policy for the acting seat: check when legal,
// otherwise fold. Returns the action taken.
func (h *Hand) AutoAct(ctx context.Context, seat int) (ActionType, error) {
	s := h.seats[seat]
	if s == nil || seat != h.actionOn || !h.phase.Betting() {
		return ActionFold, nil
	}
	if h.currentBet == s.BetThisRound {
		return ActionCheck, h.Apply(ctx, seat, ActionCheck, 0)
	}
	return ActionFold, h.Apply(ctx, seat, ActionFold, 0)
}

func (h *Hand) countNonFolded() int {
	n := 0
	for _, s := range h.seats {
		if !s.Folded {
			n++
		}
	}
	return n
}

func (h *Hand) countActionable() int {
	n := 0
	for _, s := range h.seats {
		if s.CanAct() {
			n++
		}
	}
	return n
}

// advance moves the action forward after an accepted action
func (h *Hand) advance(ctx context.Context) error {
	if h.countNonFolded() == 1 {
		return h.settleFoldOut(ctx)
	}
	if h.roundComplete() {
		return h.nextStreet(ctx)
	}
	h.actionOn = h.nextActionable(h.actionOn)
	h.turn++
	return nil
}

// roundComplete reports whether every live seat has acted since the last
// raise and matched the current bet. Blind posts are not actions, so the
// big blind always retains its preflop option.
func (h *Hand) roundComplete() bool {
	for _, n := range h.order {
		s := h.seats[n]
		if !s.CanAct() {
			continue
		}
		if !h.acted[n] || s.BetThisRound != h.currentBet {
			return false
		}
	}
	return true
}

// nextStreet closes the betting round and advances the phase, dealing
// community cards in commitment order.
func (h *Hand) nextStreet(ctx context.Context) error {
	for _, s := range h.seats {
		s.BetThisRound = 0
	}
	h.acted = make(map[int]bool)
	h.noRaise = make(map[int]bool)
	h.currentBet = 0
	h.minRaise = h.cfg.BigBlind
	h.actionOn = -1

	var dealN int
	switch h.phase {
	case PhasePreflop:
		h.phase = PhaseFlop
		dealN = 3
	case PhaseFlop:
		h.phase = PhaseTurn
		dealN = 1
	case PhaseTurn:
		h.phase = PhaseRiver
		dealN = 1
	case PhaseRiver:
		return h.settleShowdown(ctx)
	default:
		return nil
	}

	cards, err := h.dealer.Deal(dealN)
	if err != nil {
		return h.void(ctx, fmt.Sprintf("deck exhausted: %v", err))
	}
	h.board = append(h.board, cards...)

	if _, err := h.append(ctx, events.TypeStreetDealt, "", map[string]any{
		"street": h.phase.String(),
		"cards":  deck.Strings(cards),
		"board":  deck.Strings(h.board),
		"pot":    h.Pot(),
	}); err != nil {
		return err
	}

	// With fewer than two seats able to act there is no more betting; run
	// the board out to showdown.
	if h.countActionable() < 2 {
		return h.nextStreet(ctx)
	}

	h.actionOn = h.nextActionable(h.cfg.Button)
	h.turn++
	return nil
}
