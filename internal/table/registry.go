package table

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/feltworks/holdem/internal/events"
	"github.com/feltworks/holdem/internal/handid"
	"github.com/feltworks/holdem/internal/wallet"
)

var (
	ErrUnknownTable = errors.New("unknown table")
	ErrTableBusy    = errors.New("table has seated players")
)

// Registry owns the set of live tables. Creation wires each table to the
// shared wallet ledger and, when configured, a durable event store.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table

	ledger wallet.Ledger
	store  events.Store
	clock  quartz.Clock
	logger *log.Logger
	ids    *handid.Generator
}

// NewRegistry creates an empty registry
func NewRegistry(ledger wallet.Ledger, store events.Store, clock quartz.Clock, logger *log.Logger) *Registry {
	return &Registry{
		tables: make(map[string]*Table),
		ledger: ledger,
		store:  store,
		clock:  clock,
		logger: logger,
		ids:    handid.NewGenerator(nil, nil),
	}
}

// Create opens a new table. The ID is generated when cfg.ID is empty.
func (r *Registry) Create(cfg Config) (*Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg.ID == "" {
		cfg.ID = r.ids.New()
	}
	if _, exists := r.tables[cfg.ID]; exists {
		return nil, fmt.Errorf("table %s already exists", cfg.ID)
	}
	if cfg.SmallBlind <= 0 || cfg.BigBlind < cfg.SmallBlind {
		return nil, fmt.Errorf("invalid blinds %d/%d", cfg.SmallBlind, cfg.BigBlind)
	}
	if cfg.Clock == nil {
		cfg.Clock = r.clock
	}
	if cfg.Logger == nil {
		cfg.Logger = r.logger
	}

	var opts []events.Option
	if r.store != nil {
		opts = append(opts, events.WithStore(r.store))
	}
	t := New(cfg, r.ledger, events.NewLog(cfg.ID, opts...))
	r.tables[cfg.ID] = t
	r.logger.Info("table created", "table_id", cfg.ID, "name", cfg.Name,
		"blinds", fmt.Sprintf("%d/%d", cfg.SmallBlind, cfg.BigBlind))
	return t, nil
}

// Get returns a table by ID
func (r *Registry) Get(id string) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[id]
	if !ok {
		return nil, ErrUnknownTable
	}
	return t, nil
}

// List returns all live tables
func (r *Registry) List() []*Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	return out
}

// Close shuts down one table. Tables with seated players cannot be closed
// through the API; players leave first.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	t, ok := r.tables[id]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownTable
	}

	occupied, err := t.Occupied(ctx)
	if err != nil {
		return err
	}
	if occupied {
		return ErrTableBusy
	}
	if err := t.Close(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.tables, id)
	r.mu.Unlock()
	return nil
}

// Shutdown force-closes every table, voiding hands and refunding stacks.
// Used on server exit.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	tables := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		tables = append(tables, t)
	}
	r.tables = make(map[string]*Table)
	r.mu.Unlock()

	var firstErr error
	for _, t := range tables {
		if err := t.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
