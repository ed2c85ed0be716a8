package observer

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/terminal-bench/flightsurety/internal/observability"
	"github.com/terminal-bench/flightsurety/shared/events"
)

// Store tracks which events an observer has already handled
type Store interface {
	// MarkSeen records id and reports whether it was new.
	MarkSeen(ctx context.Context, id string) (bool, error)
	// Remember keeps e in the recent feed.
	Remember(ctx context.Context, e events.Event) error
}

// Handler processes a first-seen event
type Handler func(ctx context.Context, e events.Event) error

// Observer consumes the at-least-once event feed and hands each event to
// its handler exactly once per id.
type Observer struct {
	store   Store
	handler Handler
	logger  zerolog.Logger
}

func New(store Store, handler Handler, logger zerolog.Logger) *Observer {
	return &Observer{
		store:   store,
		handler: handler,
		logger:  logger.With().Str("component", "observer").Logger(),
	}
}

// Handle deduplicates e and runs the handler for new events. It returns
// whether the event was new.
func (o *Observer) Handle(ctx context.Context, e events.Event) (bool, error) {
	fresh, err := o.store.MarkSeen(ctx, e.ID.String())
	if err != nil {
		return false, fmt.Errorf("failed to check event %s: %w", e.ID, err)
	}
	observability.RecordObservedEvent(e.Type, !fresh)
	if !fresh {
		o.logger.Debug().Str("event_id", e.ID.String()).Uint64("seq", e.Seq).Msg("duplicate event dropped")
		return false, nil
	}

	if err := o.store.Remember(ctx, e); err != nil {
		o.logger.Warn().Err(err).Str("event_id", e.ID.String()).Msg("failed to record event")
	}
	if o.handler != nil {
		if err := o.handler(ctx, e); err != nil {
			return true, err
		}
	}
	return true, nil
}

// LogHandler writes one line per event
func LogHandler(logger zerolog.Logger) Handler {
	return func(ctx context.Context, e events.Event) error {
		logger.Info().
			Str("event_id", e.ID.String()).
			Uint64("seq", e.Seq).
			Str("type", e.Type).
			Str("aggregate", e.AggregateID).
			RawJSON("data", e.Data).
			Msg("event")
		return nil
	}
}

// MemoryStore is a Store for tests and single-process use
type MemoryStore struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	recent []events.Event
	limit  int
}

func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{}), limit: limit}
}

func (m *MemoryStore) MarkSeen(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[id]; ok {
		return false, nil
	}
	m.seen[id] = struct{}{}
	return true, nil
}

func (m *MemoryStore) Remember(ctx context.Context, e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = append([]events.Event{e}, m.recent...)
	if m.limit > 0 && len(m.recent) > m.limit {
		m.recent = m.recent[:m.limit]
	}
	return nil
}

// Recent returns remembered events, newest first
func (m *MemoryStore) Recent() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.recent...)
}
