package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/flightsurety/internal/observability"
	"github.com/terminal-bench/flightsurety/shared/events"
)

// Sink receives committed events. Deliver must either accept the whole
// batch or return an error; a failed batch is delivered again, so sinks
// see every event at least once.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, batch []events.Event) error
}

// Cursors remembers the last seq each sink acknowledged
type Cursors interface {
	Load(ctx context.Context, sink string) (uint64, error)
	Save(ctx context.Context, sink string, seq uint64) error
}

// Config holds relay settings
type Config struct {
	BatchSize  int
	RetryDelay time.Duration
	MaxDelay   time.Duration
}

// Relay pumps the event log into each sink independently
type Relay struct {
	log     *events.Log
	sinks   []Sink
	cursors Cursors
	cfg     Config
	logger  zerolog.Logger
}

// New creates a relay. A nil Cursors starts every sink from the beginning
// of the log.
func New(log *events.Log, cursors Cursors, cfg Config, logger zerolog.Logger, sinks ...Sink) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.RetryDelay {
		cfg.MaxDelay = 30 * time.Second
	}
	if cursors == nil {
		cursors = NewMemoryCursors()
	}
	return &Relay{
		log:     log,
		sinks:   sinks,
		cursors: cursors,
		cfg:     cfg,
		logger:  logger.With().Str("component", "relay").Logger(),
	}
}

// Run pumps until ctx is cancelled
func (r *Relay) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range r.sinks {
		s := s
		g.Go(func() error {
			return r.pump(ctx, s)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Relay) pump(ctx context.Context, s Sink) error {
	cursor, err := r.cursors.Load(ctx, s.Name())
	if err != nil {
		return fmt.Errorf("failed to load cursor for %s: %w", s.Name(), err)
	}
	logger := r.logger.With().Str("sink", s.Name()).Logger()
	logger.Info().Uint64("cursor", cursor).Msg("relay started")

	delay := r.cfg.RetryDelay
	for {
		if err := r.log.Wait(ctx, cursor); err != nil {
			return err
		}

		batch := r.log.After(cursor, r.cfg.BatchSize)
		if len(batch) == 0 {
			continue
		}

		if err := s.Deliver(ctx, batch); err != nil {
			observability.RecordRelayDelivery(s.Name(), cursor, false)
			logger.Warn().Err(err).Uint64("cursor", cursor).Dur("retry_in", delay).Msg("delivery failed")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > r.cfg.MaxDelay {
				delay = r.cfg.MaxDelay
			}
			continue
		}

		delay = r.cfg.RetryDelay
		cursor = batch[len(batch)-1].Seq
		observability.RecordRelayDelivery(s.Name(), cursor, true)
		if err := r.cursors.Save(ctx, s.Name(), cursor); err != nil {
			logger.Warn().Err(err).Uint64("cursor", cursor).Msg("failed to save cursor")
		}
	}
}

// MemoryCursors keeps cursors in process
type MemoryCursors struct {
	mu   sync.Mutex
	seqs map[string]uint64
}

func NewMemoryCursors() *MemoryCursors {
	return &MemoryCursors{seqs: make(map[string]uint64)}
}

func (m *MemoryCursors) Load(ctx context.Context, sink string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seqs[sink], nil
}

func (m *MemoryCursors) Save(ctx context.Context, sink string, seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs[sink] = seq
	return nil
}
