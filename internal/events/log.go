package events

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Log is the in-memory event log for a single table. Appends assign the
// monotonic sequence number; when a durable Store is attached the entry is
// written through before the append is acknowledged, so no state transition
// commits ahead of its event.
type Log struct {
	mu      sync.RWMutex
	tableID string
	seq     uint64
	entries []Event
	store   Store
	now     func() time.Time

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// Option configures a Log
type Option func(*Log)

// WithStore attaches a durable write-through store
func WithStore(store Store) Option {
	return func(l *Log) { l.store = store }
}

// WithNow overrides the timestamp source. Timestamps are advisory only;
// ordering comes from the sequence number.
func WithNow(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// NewLog creates an event log for a table
func NewLog(tableID string, opts ...Option) *Log {
	l := &Log{
		tableID: tableID,
		now:     time.Now,
		subs:    make(map[chan Event]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append assigns the next sequence number and records the event. If a
// durable store is attached the write must succeed first.
func (l *Log) Append(ctx context.Context, handID string, typ Type, agentID string, payload map[string]any) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := Event{
		Seq:     l.seq + 1,
		TableID: l.tableID,
		HandID:  handID,
		Type:    typ,
		AgentID: agentID,
		Payload: payload,
		Time:    l.now(),
	}

	if l.store != nil {
		if err := l.store.Append(ctx, ev); err != nil {
			return Event{}, fmt.Errorf("durable append: %w", err)
		}
	}

	l.seq = ev.Seq
	l.entries = append(l.entries, ev)
	l.notify(ev)
	return ev, nil
}

// Subscribe registers a channel that receives every event appended after
// the call. Delivery is best-effort: a subscriber that cannot keep up has
// events dropped rather than blocking the append path, and must catch up
// through Since.
func (l *Log) Subscribe(ch chan Event) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.subs[ch] = struct{}{}
}

// Unsubscribe removes a previously registered channel
func (l *Log) Unsubscribe(ch chan Event) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	delete(l.subs, ch)
}

func (l *Log) notify(ev Event) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Since returns all events with sequence number greater than seq, in order
func (l *Log) Since(seq uint64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	// Sequence numbers are 1-based and dense
	if seq >= l.seq {
		return nil
	}
	out := make([]Event, l.seq-seq)
	copy(out, l.entries[seq:])
	return out
}

// LastSeq returns the sequence number of the most recent event
func (l *Log) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// TableID returns the table this log belongs to
func (l *Log) TableID() string {
	return l.tableID
}
