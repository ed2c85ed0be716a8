package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/flightsurety/shared/events"
)

type recordingSink struct {
	mu       sync.Mutex
	name     string
	failures int
	seen     []uint64
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, batch []events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range batch {
		s.seen = append(s.seen, e.Seq)
	}
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	return nil
}

func (s *recordingSink) snapshot() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.seen...)
}

func appendEvents(t *testing.T, log *events.Log, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		seq := log.Head() + 1
		e, err := events.NewEvent(events.DeriveID(seq, 0), time.Now(), events.AirlineSubmitted, "0xa2",
			events.AirlineData{Airline: "0xa2"}, events.Metadata{Source: "test"})
		require.NoError(t, err)
		log.Append(*e)
	}
}

func TestRelay(t *testing.T) {
	cfg := Config{BatchSize: 10, RetryDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond}

	t.Run("should deliver every event to every sink", func(t *testing.T) {
		log := events.NewLog()
		a := &recordingSink{name: "a"}
		b := &recordingSink{name: "b"}
		cursors := NewMemoryCursors()
		r := New(log, cursors, cfg, zerolog.Nop(), a, b)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()

		appendEvents(t, log, 3)
		assert.Eventually(t, func() bool { return len(a.snapshot()) == 3 && len(b.snapshot()) == 3 },
			time.Second, 5*time.Millisecond)

		cancel()
		require.NoError(t, <-done)

		seq, _ := cursors.Load(context.Background(), "a")
		assert.Equal(t, uint64(3), seq)
	})

	t.Run("should redeliver after a failure", func(t *testing.T) {
		log := events.NewLog()
		appendEvents(t, log, 2)
		flaky := &recordingSink{name: "flaky", failures: 1}
		r := New(log, nil, cfg, zerolog.Nop(), flaky)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()

		assert.Eventually(t, func() bool { return len(flaky.snapshot()) == 4 }, time.Second, 5*time.Millisecond)
		cancel()
		require.NoError(t, <-done)

		assert.Equal(t, []uint64{1, 2, 1, 2}, flaky.snapshot())
	})

	t.Run("should resume from a saved cursor", func(t *testing.T) {
		log := events.NewLog()
		appendEvents(t, log, 4)
		cursors := NewMemoryCursors()
		require.NoError(t, cursors.Save(context.Background(), "s", 3))
		s := &recordingSink{name: "s"}
		r := New(log, cursors, cfg, zerolog.Nop(), s)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()

		assert.Eventually(t, func() bool { return len(s.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
		cancel()
		require.NoError(t, <-done)
		assert.Equal(t, []uint64{4}, s.snapshot())
	})
}
