package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/feltworks/holdem/internal/events"
	"github.com/feltworks/holdem/internal/game"
	"github.com/feltworks/holdem/internal/table"
	"github.com/feltworks/holdem/internal/wallet"
)

// GameService bridges the wire protocol and the table layer. It is
// stateless apart from the registry and ledger it fronts; all game state
// lives in the table actors.
type GameService struct {
	registry *table.Registry
	ledger   wallet.Ledger
	logger   *log.Logger
}

// NewGameService creates a game service
func NewGameService(registry *table.Registry, ledger wallet.Ledger, logger *log.Logger) *GameService {
	return &GameService{
		registry: registry,
		ledger:   ledger,
		logger:   logger.WithPrefix("game"),
	}
}

// Registry exposes the table registry
func (g *GameService) Registry() *table.Registry { return g.registry }

// Balance returns an agent's wallet balance
func (g *GameService) Balance(ctx context.Context, agentID string) (int, error) {
	return g.ledger.Balance(ctx, agentID)
}

// ListTables describes every live table
func (g *GameService) ListTables(ctx context.Context) ([]TableInfo, error) {
	var infos []TableInfo
	for _, t := range g.registry.List() {
		view, err := t.State(ctx, "")
		if err != nil {
			return nil, err
		}
		infos = append(infos, TableInfo{
			ID:       t.ID(),
			Name:     t.Name(),
			Seated:   len(view.Seats),
			MaxSeats: view.MaxSeats,
			Stakes:   fmt.Sprintf("%d/%d", view.SmallBlind, view.BigBlind),
		})
	}
	return infos, nil
}

// JoinTable seats an agent
func (g *GameService) JoinTable(ctx context.Context, agentID, tableID string, seat, buyIn int) error {
	t, err := g.registry.Get(tableID)
	if err != nil {
		return err
	}
	return t.Join(ctx, agentID, seat, buyIn)
}

// LeaveTable removes an agent from a table
func (g *GameService) LeaveTable(ctx context.Context, agentID, tableID string) error {
	t, err := g.registry.Get(tableID)
	if err != nil {
		return err
	}
	return t.Leave(ctx, agentID)
}

// Act applies a player action
func (g *GameService) Act(ctx context.Context, agentID, tableID, action string, amount int) error {
	t, err := g.registry.Get(tableID)
	if err != nil {
		return err
	}
	at, err := game.ParseAction(action)
	if err != nil {
		return &game.Fault{Kind: game.FaultInvalidAction, Message: err.Error()}
	}
	return t.Act(ctx, agentID, at, amount)
}

// AddChips tops up an agent's stack
func (g *GameService) AddChips(ctx context.Context, agentID, tableID string, amount int) error {
	t, err := g.registry.Get(tableID)
	if err != nil {
		return err
	}
	return t.AddChips(ctx, agentID, amount)
}

// SitIn returns a sitting-out agent to play
func (g *GameService) SitIn(ctx context.Context, agentID, tableID string) error {
	t, err := g.registry.Get(tableID)
	if err != nil {
		return err
	}
	return t.SitIn(ctx, agentID)
}

// SitOut benches an agent without giving up the seat
func (g *GameService) SitOut(ctx context.Context, agentID, tableID string) error {
	t, err := g.registry.Get(tableID)
	if err != nil {
		return err
	}
	return t.SitOut(ctx, agentID)
}

// State snapshots a table for an agent, with opponents' cards redacted
func (g *GameService) State(ctx context.Context, agentID, tableID string) (table.View, error) {
	t, err := g.registry.Get(tableID)
	if err != nil {
		return table.View{}, err
	}
	return t.State(ctx, agentID)
}

// Events returns a table's event log after seq
func (g *GameService) Events(ctx context.Context, tableID string, since uint64) (EventsData, error) {
	t, err := g.registry.Get(tableID)
	if err != nil {
		return EventsData{}, err
	}
	return EventsData{TableID: tableID, Events: t.Events(since)}, nil
}

// Subscribe registers ch for live events from a table's log
func (g *GameService) Subscribe(tableID string, ch chan events.Event) error {
	t, err := g.registry.Get(tableID)
	if err != nil {
		return err
	}
	t.Log().Subscribe(ch)
	return nil
}

// Unsubscribe removes a live event subscription. Safe when the table is
// already gone.
func (g *GameService) Unsubscribe(tableID string, ch chan events.Event) {
	t, err := g.registry.Get(tableID)
	if err != nil {
		return
	}
	t.Log().Unsubscribe(ch)
}

// errorCode maps an error to a wire-level code
func errorCode(err error) string {
	var fault *game.Fault
	switch {
	case errors.As(err, &fault):
		return string(fault.Kind)
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return string(game.FaultInsufficientFunds)
	case errors.Is(err, table.ErrUnknownTable):
		return "unknown_table"
	case errors.Is(err, table.ErrSeatTaken):
		return "seat_taken"
	case errors.Is(err, table.ErrTableFull):
		return "table_full"
	case errors.Is(err, table.ErrAlreadySeated):
		return "already_seated"
	case errors.Is(err, table.ErrNotSeated):
		return "not_seated"
	case errors.Is(err, table.ErrBuyInRange):
		return "buy_in_range"
	case errors.Is(err, table.ErrAgentFlagged):
		return "agent_flagged"
	case errors.Is(err, table.ErrNoHand):
		return "no_hand"
	case errors.Is(err, table.ErrHandInProgress):
		return "hand_in_progress"
	case errors.Is(err, table.ErrTableClosed):
		return "table_closed"
	default:
		return "internal"
	}
}
