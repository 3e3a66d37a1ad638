// Package engine defines the capability surface a game variant exposes to
// the platform. Hold'em is the one registered variant today; the interface
// is the seam where further variants plug in without touching the
// transport.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/feltworks/holdem/internal/events"
	"github.com/feltworks/holdem/internal/game"
	"github.com/feltworks/holdem/internal/table"
	"github.com/feltworks/holdem/internal/wallet"
)

// Game is one running game instance. All methods are safe for concurrent
// use and run against live money, so implementations must satisfy chip
// conservation across every operation.
type Game interface {
	ID() string
	Name() string

	Join(ctx context.Context, agentID string, seat, buyIn int) error
	Leave(ctx context.Context, agentID string) error
	Act(ctx context.Context, agentID string, action game.ActionType, amount int) error
	State(ctx context.Context, agentID string) (table.View, error)
	Events(since uint64) []events.Event
	Close(ctx context.Context) error
}

// Factory creates a game instance for a variant
type Factory func(cfg table.Config, ledger wallet.Ledger, log *events.Log) Game

var (
	mu       sync.RWMutex
	variants = make(map[string]Factory)
)

// Register makes a variant available by name. Panics on duplicates, which
// are always programming errors at init time.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := variants[name]; dup {
		panic(fmt.Sprintf("engine: variant %q already registered", name))
	}
	variants[name] = f
}

// New creates a game of the named variant
func New(name string, cfg table.Config, ledger wallet.Ledger, log *events.Log) (Game, error) {
	mu.RLock()
	f, ok := variants[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: unknown variant %q", name)
	}
	return f(cfg, ledger, log), nil
}

// Variants lists the registered variant names, sorted
func Variants() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(variants))
	for name := range variants {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// No-Limit Texas Hold'em is the built-in variant
func init() {
	Register("nlhe", func(cfg table.Config, ledger wallet.Ledger, log *events.Log) Game {
		return table.New(cfg, ledger, log)
	})
}

var _ Game = (*table.Table)(nil)
