// Package table runs the per-table actor that owns all mutable state for
// one cash-game table: seats, the button, the current hand, and the rake
// total. All access is serialized through a single goroutine, so the game
// logic itself never locks.
package table

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/feltworks/holdem/internal/events"
	"github.com/feltworks/holdem/internal/game"
	"github.com/feltworks/holdem/internal/handid"
	"github.com/feltworks/holdem/internal/wallet"
)

var (
	ErrTableClosed    = errors.New("table closed")
	ErrTableFull      = errors.New("table full")
	ErrSeatTaken      = errors.New("seat taken")
	ErrAlreadySeated  = errors.New("agent already seated")
	ErrNotSeated      = errors.New("agent not seated")
	ErrBuyInRange     = errors.New("buy-in outside table limits")
	ErrHandInProgress = errors.New("hand in progress")
	ErrNoHand         = errors.New("no hand in progress")
	ErrAgentFlagged   = errors.New("agent flagged for review")
)

// RiskChecker answers whether an agent is currently flagged by the
// collusion detector. Flags are written asynchronously by the analytics
// pipeline; the table only reads them at join time.
type RiskChecker interface {
	Flagged(ctx context.Context, agentID string) (bool, error)
}

// SeatStatus is a seat's standing at the table
type SeatStatus string

const (
	SeatActive     SeatStatus = "active"
	SeatSittingOut SeatStatus = "sitting_out"
)

// Seat is one occupied position at the table
type Seat struct {
	Number  int
	AgentID string
	Stack   int
	Status  SeatStatus

	// pendingLeave defers seat removal and the stack refund until the
	// current hand completes
	pendingLeave bool
}

// Config parameterizes a table
type Config struct {
	ID            string
	Name          string
	Seats         int // maximum seats
	SmallBlind    int
	BigBlind      int
	MinBuyIn      int
	MaxBuyIn      int
	ActionTimeout time.Duration
	HandGap       time.Duration // pause between hands when auto-starting
	Rake          game.RakeConfig
	RakeAccount   string // wallet account credited with rake
	AutoStart     bool   // deal the next hand whenever two seats are ready

	Risk RiskChecker // optional; nil disables the join-time check

	Entropy io.Reader
	Clock   quartz.Clock
	Logger  *log.Logger
}

func (c *Config) withDefaults() {
	if c.Seats == 0 {
		c.Seats = 9
	}
	if c.ActionTimeout == 0 {
		c.ActionTimeout = 30 * time.Second
	}
	if c.RakeAccount == "" {
		c.RakeAccount = "house:rake"
	}
	if c.Clock == nil {
		c.Clock = quartz.NewReal()
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard)
	}
}

// Table is one cash-game table. Public methods are safe for concurrent use;
// each one runs to completion on the table's goroutine before returning.
type Table struct {
	cfg    Config
	logger *log.Logger
	clock  quartz.Clock
	ledger wallet.Ledger
	log    *events.Log
	ids    *handid.Generator

	cmds   chan func()
	closed chan struct{}

	seats       map[int]*Seat
	button      int
	handNum     int
	hand        *game.Hand
	actionTimer *quartz.Timer
	totalRake   int
}

// New creates a table and starts its actor goroutine
func New(cfg Config, ledger wallet.Ledger, eventLog *events.Log) *Table {
	cfg.withDefaults()
	t := &Table{
		cfg:    cfg,
		logger: cfg.Logger.WithPrefix("table").With("table_id", cfg.ID),
		clock:  cfg.Clock,
		ledger: ledger,
		log:    eventLog,
		ids:    handid.NewGenerator(nil, nil),
		cmds:   make(chan func()),
		closed: make(chan struct{}),
		seats:  make(map[int]*Seat),
	}
	go t.run()
	return t
}

func (t *Table) run() {
	for {
		select {
		case fn := <-t.cmds:
			fn()
		case <-t.closed:
			return
		}
	}
}

// do runs fn on the table goroutine and waits for it
func (t *Table) do(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	select {
	case t.cmds <- func() { done <- fn(ctx) }:
	case <-t.closed:
		return ErrTableClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue schedules fn on the table goroutine without waiting. Used by
// timer callbacks, which must not block the clock.
func (t *Table) enqueue(fn func()) {
	go func() {
		select {
		case t.cmds <- fn:
		case <-t.closed:
		}
	}()
}

// ID returns the table identifier
func (t *Table) ID() string { return t.cfg.ID }

// Name returns the table's display name
func (t *Table) Name() string { return t.cfg.Name }

// Join seats an agent with a buy-in. The buy-in is a two-phase wallet
// debit: reserved first, committed only once the seat is granted. Joining
// mid-hand is allowed; the seat enters play at the next hand.
func (t *Table) Join(ctx context.Context, agentID string, seatNum, buyIn int) error {
	return t.do(ctx, func(ctx context.Context) error {
		if seatNum < 1 || seatNum > t.cfg.Seats {
			return fmt.Errorf("seat %d out of range 1-%d", seatNum, t.cfg.Seats)
		}
		if _, taken := t.seats[seatNum]; taken {
			return ErrSeatTaken
		}
		if len(t.seats) >= t.cfg.Seats {
			return ErrTableFull
		}
		if t.seatOf(agentID) != nil {
			return ErrAlreadySeated
		}
		if buyIn < t.cfg.MinBuyIn || (t.cfg.MaxBuyIn > 0 && buyIn > t.cfg.MaxBuyIn) {
			return fmt.Errorf("%w: %d not in [%d, %d]", ErrBuyInRange, buyIn, t.cfg.MinBuyIn, t.cfg.MaxBuyIn)
		}
		if t.cfg.Risk != nil {
			flagged, err := t.cfg.Risk.Flagged(ctx, agentID)
			if err != nil {
				return fmt.Errorf("risk check: %w", err)
			}
			if flagged {
				t.logger.Warn("join refused", "agent", agentID, "reason", "risk flag")
				return ErrAgentFlagged
			}
		}

		res, err := t.ledger.Reserve(ctx, agentID, buyIn)
		if err != nil {
			return err
		}
		if err := t.ledger.Commit(ctx, res); err != nil {
			if rerr := t.ledger.Release(ctx, res); rerr != nil {
				t.logger.Error("release after failed commit", "error", rerr)
			}
			return err
		}

		t.seats[seatNum] = &Seat{
			Number:  seatNum,
			AgentID: agentID,
			Stack:   buyIn,
			Status:  SeatActive,
		}
		if _, err := t.log.Append(ctx, "", events.TypePlayerJoin, agentID, map[string]any{
			"seat": seatNum, "buy_in": buyIn,
		}); err != nil {
			return err
		}
		t.logger.Info("player joined", "agent_id", agentID, "seat", seatNum, "buy_in", buyIn)

		t.maybeStartHand(ctx)
		return nil
	})
}

// Leave removes an agent from the table and credits their stack back to
// their wallet. Mid-hand the seat is folded immediately and the refund
// waits for the hand to complete; chips already committed stay in the pot.
func (t *Table) Leave(ctx context.Context, agentID string) error {
	return t.do(ctx, func(ctx context.Context) error {
		seat := t.seatOf(agentID)
		if seat == nil {
			return ErrNotSeated
		}

		if t.hand != nil && t.hand.Phase().Betting() && t.hand.SeatOf(agentID) == seat.Number {
			seat.Status = SeatSittingOut
			seat.pendingLeave = true
			if err := t.hand.ForceFold(ctx, seat.Number); err != nil {
				return err
			}
			t.afterAction(ctx)
			return nil
		}

		return t.removeSeat(ctx, seat)
	})
}

// removeSeat vacates a seat and refunds the stack. Runs on the table
// goroutine only.
func (t *Table) removeSeat(ctx context.Context, seat *Seat) error {
	ev, err := t.log.Append(ctx, "", events.TypePlayerLeave, seat.AgentID, map[string]any{
		"seat": seat.Number, "stack": seat.Stack,
	})
	if err != nil {
		return err
	}
	if seat.Stack > 0 {
		key := fmt.Sprintf("%s:leave:%d", t.cfg.ID, ev.Seq)
		err := wallet.Retry(ctx, 3, func() error {
			return t.ledger.Credit(ctx, seat.AgentID, seat.Stack, key)
		})
		if err != nil {
			// The seat is already vacated in the event log; surfacing the
			// error lets the operator replay the credit with the same key.
			t.logger.Error("stack refund failed", "agent_id", seat.AgentID, "key", key, "error", err)
			return err
		}
	}
	delete(t.seats, seat.Number)
	t.logger.Info("player left", "agent_id", seat.AgentID, "seat", seat.Number, "stack", seat.Stack)
	return nil
}

// AddChips tops up a seated agent's stack between hands, up to the table
// maximum.
func (t *Table) AddChips(ctx context.Context, agentID string, amount int) error {
	return t.do(ctx, func(ctx context.Context) error {
		seat := t.seatOf(agentID)
		if seat == nil {
			return ErrNotSeated
		}
		if amount <= 0 {
			return fmt.Errorf("add amount must be positive")
		}
		if t.hand != nil && t.hand.Phase().Betting() && t.hand.SeatOf(agentID) == seat.Number {
			return ErrHandInProgress
		}
		if t.cfg.MaxBuyIn > 0 && seat.Stack+amount > t.cfg.MaxBuyIn {
			return fmt.Errorf("%w: stack would exceed maximum %d", ErrBuyInRange, t.cfg.MaxBuyIn)
		}

		res, err := t.ledger.Reserve(ctx, agentID, amount)
		if err != nil {
			return err
		}
		if err := t.ledger.Commit(ctx, res); err != nil {
			if rerr := t.ledger.Release(ctx, res); rerr != nil {
				t.logger.Error("release after failed commit", "error", rerr)
			}
			return err
		}

		seat.Stack += amount
		if seat.Status == SeatSittingOut && !seat.pendingLeave {
			seat.Status = SeatActive
		}
		if _, err := t.log.Append(ctx, "", events.TypeChipsAdded, agentID, map[string]any{
			"seat": seat.Number, "amount": amount, "stack": seat.Stack,
		}); err != nil {
			return err
		}
		t.maybeStartHand(ctx)
		return nil
	})
}

// SitOut benches an agent without vacating the seat. A seat with a live
// hand folds as soon as action reaches it. Used on disconnect.
func (t *Table) SitOut(ctx context.Context, agentID string) error {
	return t.do(ctx, func(ctx context.Context) error {
		seat := t.seatOf(agentID)
		if seat == nil {
			return ErrNotSeated
		}
		seat.Status = SeatSittingOut
		if t.hand != nil && t.hand.Phase().Betting() && t.hand.ActionOn() == seat.Number {
			if err := t.hand.ForceFold(ctx, seat.Number); err != nil {
				return err
			}
			t.afterAction(ctx)
		}
		return nil
	})
}

// SitIn returns a sitting-out agent to active play from the next hand
func (t *Table) SitIn(ctx context.Context, agentID string) error {
	return t.do(ctx, func(ctx context.Context) error {
		seat := t.seatOf(agentID)
		if seat == nil {
			return ErrNotSeated
		}
		if seat.pendingLeave {
			return ErrNotSeated
		}
		seat.Status = SeatActive
		t.maybeStartHand(ctx)
		return nil
	})
}

// Act applies a player action to the current hand
func (t *Table) Act(ctx context.Context, agentID string, action game.ActionType, amount int) error {
	return t.do(ctx, func(ctx context.Context) error {
		if t.hand == nil {
			return ErrNoHand
		}
		seat := t.seatOf(agentID)
		if seat == nil {
			return ErrNotSeated
		}
		n := t.hand.SeatOf(agentID)
		if n == -1 {
			return ErrNoHand
		}
		if err := t.hand.Apply(ctx, n, action, amount); err != nil {
			return err
		}
		t.afterAction(ctx)
		return nil
	})
}

// StartHand deals a hand on demand. Only needed when AutoStart is off.
func (t *Table) StartHand(ctx context.Context) error {
	return t.do(ctx, func(ctx context.Context) error {
		if t.hand != nil {
			return ErrHandInProgress
		}
		if !t.ready() {
			return fmt.Errorf("need at least two active seats with chips")
		}
		return t.startHand(ctx)
	})
}

// ready reports whether a new hand can be dealt
func (t *Table) ready() bool {
	n := 0
	for _, s := range t.seats {
		if s.Status == SeatActive && s.Stack > 0 {
			n++
		}
	}
	return n >= 2
}

func (t *Table) seatOf(agentID string) *Seat {
	for _, s := range t.seats {
		if s.AgentID == agentID {
			return s
		}
	}
	return nil
}

// orderedSeats returns occupied seat numbers ascending
func (t *Table) orderedSeats() []int {
	var out []int
	for n := 1; n <= t.cfg.Seats; n++ {
		if _, ok := t.seats[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// maybeStartHand deals when auto-start is on and the table is idle with
// enough ready seats. A dead table simply stays quiet until players arrive.
func (t *Table) maybeStartHand(ctx context.Context) {
	if !t.cfg.AutoStart || t.hand != nil || !t.ready() {
		return
	}
	if err := t.startHand(ctx); err != nil {
		t.logger.Error("auto-start failed", "error", err)
	}
}

// startHand rotates the button and deals. Runs on the table goroutine.
func (t *Table) startHand(ctx context.Context) error {
	var players []game.SeatPlayer
	for _, n := range t.orderedSeats() {
		s := t.seats[n]
		if s.Status == SeatActive && s.Stack > 0 {
			players = append(players, game.SeatPlayer{Seat: n, AgentID: s.AgentID, Stack: s.Stack})
		}
	}
	if len(players) < 2 {
		return fmt.Errorf("need at least two active seats with chips")
	}

	t.button = t.nextButton(players)
	t.handNum++

	hand, err := game.New(ctx, game.Config{
		HandID:     t.ids.New(),
		TableID:    t.cfg.ID,
		Number:     t.handNum,
		Button:     t.button,
		SmallBlind: t.cfg.SmallBlind,
		BigBlind:   t.cfg.BigBlind,
		Rake:       t.cfg.Rake,
		Entropy:    t.cfg.Entropy,
		Logger:     t.cfg.Logger,
	}, players, t.log)
	if err != nil {
		return fmt.Errorf("deal hand: %w", err)
	}
	t.hand = hand
	t.logger.Info("hand dealt", "hand_id", hand.ID(), "number", t.handNum, "button", t.button, "players", len(players))

	// Blinds alone can settle the hand (everyone all-in)
	t.afterAction(ctx)
	return nil
}

// nextButton advances the button to the next participating seat clockwise
func (t *Table) nextButton(players []game.SeatPlayer) int {
	if t.button == 0 {
		return players[0].Seat
	}
	for _, p := range players {
		if p.Seat > t.button {
			return p.Seat
		}
	}
	return players[0].Seat
}

// afterAction reconciles table state with the hand after any transition:
// finishes settled hands, folds seats that are gone, and arms the action
// timer. Runs on the table goroutine.
func (t *Table) afterAction(ctx context.Context) {
	if t.hand == nil {
		return
	}

	// A seat that left or sat out mid-hand folds as soon as action reaches
	// it, keeping the hand moving for everyone else.
	for t.hand.Phase().Betting() {
		n := t.hand.ActionOn()
		if n == -1 {
			break
		}
		seat := t.seats[n]
		if seat == nil || seat.Status != SeatSittingOut {
			break
		}
		if err := t.hand.ForceFold(ctx, n); err != nil {
			t.logger.Error("auto-fold failed", "seat", n, "error", err)
			break
		}
	}

	switch t.hand.Phase() {
	case game.PhaseSettled, game.PhaseVoid:
		t.finishHand(ctx)
	default:
		t.armActionTimer()
	}
}

// armActionTimer schedules the auto-act deadline for the acting seat. The
// turn counter captured here makes a late-firing timer harmless.
func (t *Table) armActionTimer() {
	if t.actionTimer != nil {
		t.actionTimer.Stop()
		t.actionTimer = nil
	}
	if t.hand == nil || !t.hand.Phase().Betting() || t.hand.ActionOn() == -1 {
		return
	}

	turn := t.hand.Turn()
	t.actionTimer = t.clock.AfterFunc(t.cfg.ActionTimeout, func() {
		t.enqueue(func() { t.onActionTimeout(turn) })
	})
}

// onActionTimeout fires the timeout policy: check when free, otherwise
// fold, and sit the seat out. Stale timers (the turn moved on) are ignored.
func (t *Table) onActionTimeout(turn uint64) {
	if t.hand == nil || t.hand.Turn() != turn || !t.hand.Phase().Betting() {
		return
	}
	ctx := context.Background()
	n := t.hand.ActionOn()
	taken, err := t.hand.AutoAct(ctx, n)
	if err != nil {
		t.logger.Error("auto-act failed", "seat", n, "error", err)
		return
	}
	t.logger.Warn("action timeout", "seat", n, "auto_action", taken.String())
	if taken == game.ActionFold {
		if seat := t.seats[n]; seat != nil {
			seat.Status = SeatSittingOut
		}
	}
	t.afterAction(ctx)
}

// finishHand folds the hand's outcome back into the table: stacks, rake,
// deferred leaves, and the next deal.
func (t *Table) finishHand(ctx context.Context) {
	if t.actionTimer != nil {
		t.actionTimer.Stop()
		t.actionTimer = nil
	}
	hand := t.hand
	t.hand = nil

	for _, n := range hand.Seats() {
		if seat := t.seats[n]; seat != nil {
			seat.Stack = hand.Seat(n).Stack
		}
	}

	if res := hand.Result(); res != nil && res.Rake > 0 {
		t.totalRake += res.Rake
		key := fmt.Sprintf("%s:rake", hand.ID())
		err := wallet.Retry(ctx, 3, func() error {
			return t.ledger.Credit(ctx, t.cfg.RakeAccount, res.Rake, key)
		})
		if err != nil {
			t.logger.Error("rake credit failed", "hand_id", hand.ID(), "key", key, "error", err)
		}
	}

	for _, n := range t.orderedSeats() {
		seat := t.seats[n]
		if seat.pendingLeave {
			if err := t.removeSeat(ctx, seat); err != nil {
				t.logger.Error("deferred leave failed", "agent_id", seat.AgentID, "error", err)
			}
		}
	}

	// Busted seats sit out until they rebuy
	for _, seat := range t.seats {
		if seat.Stack == 0 && seat.Status == SeatActive {
			seat.Status = SeatSittingOut
			t.logger.Info("seat busted", "agent_id", seat.AgentID, "seat", seat.Number)
		}
	}

	if t.cfg.AutoStart && t.ready() {
		if t.cfg.HandGap > 0 {
			t.clock.AfterFunc(t.cfg.HandGap, func() {
				t.enqueue(func() { t.maybeStartHand(context.Background()) })
			})
		} else {
			t.maybeStartHand(ctx)
		}
	}
}

// SeatView is a seat in a table snapshot
type SeatView struct {
	Seat    int    `json:"seat"`
	AgentID string `json:"agent_id"`
	Stack   int    `json:"stack"`
	Status  string `json:"status"`
}

// View is a point-in-time table snapshot for one viewer
type View struct {
	ID         string         `json:"table_id"`
	Name       string         `json:"name"`
	SmallBlind int            `json:"small_blind"`
	BigBlind   int            `json:"big_blind"`
	MaxSeats   int            `json:"max_seats"`
	Button     int            `json:"button"`
	HandNumber int            `json:"hand_number"`
	TotalRake  int            `json:"total_rake"`
	Seats      []SeatView     `json:"seats"`
	Hand       *game.Snapshot `json:"hand,omitempty"`
}

// State snapshots the table for an agent. Hole cards belonging to other
// seats are redacted by the hand snapshot.
func (t *Table) State(ctx context.Context, agentID string) (View, error) {
	var view View
	err := t.do(ctx, func(ctx context.Context) error {
		view = View{
			ID:         t.cfg.ID,
			Name:       t.cfg.Name,
			SmallBlind: t.cfg.SmallBlind,
			BigBlind:   t.cfg.BigBlind,
			MaxSeats:   t.cfg.Seats,
			Button:     t.button,
			HandNumber: t.handNum,
			TotalRake:  t.totalRake,
		}
		for _, n := range t.orderedSeats() {
			s := t.seats[n]
			view.Seats = append(view.Seats, SeatView{
				Seat: n, AgentID: s.AgentID, Stack: s.Stack, Status: string(s.Status),
			})
		}
		if t.hand != nil {
			snap := t.hand.Snapshot(agentID)
			view.Hand = &snap
		}
		return nil
	})
	return view, err
}

// Log exposes the table's event log for live subscriptions
func (t *Table) Log() *events.Log { return t.log }

// Events returns the table's event log entries after seq
func (t *Table) Events(since uint64) []events.Event {
	return t.log.Since(since)
}

// Occupied reports whether any seat is taken
func (t *Table) Occupied(ctx context.Context) (bool, error) {
	occupied := false
	err := t.do(ctx, func(ctx context.Context) error {
		occupied = len(t.seats) > 0
		return nil
	})
	return occupied, err
}

// Close shuts the table down: the current hand is voided with all committed
// chips refunded, every remaining stack is credited back to its wallet, and
// the actor stops.
func (t *Table) Close(ctx context.Context) error {
	err := t.do(ctx, func(ctx context.Context) error {
		if t.actionTimer != nil {
			t.actionTimer.Stop()
			t.actionTimer = nil
		}
		if t.hand != nil {
			if err := t.hand.Void(ctx, "table closing"); err != nil {
				t.logger.Error("void on close failed", "error", err)
			}
			for _, n := range t.hand.Seats() {
				if seat := t.seats[n]; seat != nil {
					seat.Stack = t.hand.Seat(n).Stack
				}
			}
			t.hand = nil
		}
		for _, n := range t.orderedSeats() {
			if err := t.removeSeat(ctx, t.seats[n]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	close(t.closed)
	return nil
}
