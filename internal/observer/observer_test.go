package observer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/flightsurety/shared/events"
)

func newEvent(t *testing.T, seq uint64) events.Event {
	t.Helper()
	e, err := events.NewEvent(events.DeriveID(seq, 0), time.Now(), events.PayoutCredited, "0xb1",
		events.InsuranceData{Passenger: "0xb1", Amount: "1.5"}, events.Metadata{Source: "test"})
	require.NoError(t, err)
	e.Seq = seq
	return *e
}

func TestObserver(t *testing.T) {
	ctx := context.Background()

	t.Run("should handle each event id once", func(t *testing.T) {
		var handled []uint64
		store := NewMemoryStore(10)
		o := New(store, func(ctx context.Context, e events.Event) error {
			handled = append(handled, e.Seq)
			return nil
		}, zerolog.Nop())

		for _, seq := range []uint64{1, 2, 1, 3, 2} {
			_, err := o.Handle(ctx, newEvent(t, seq))
			require.NoError(t, err)
		}

		assert.Equal(t, []uint64{1, 2, 3}, handled)
		recent := store.Recent()
		require.Len(t, recent, 3)
		assert.Equal(t, uint64(3), recent[0].Seq)
	})

	t.Run("should report whether the event was new", func(t *testing.T) {
		o := New(NewMemoryStore(0), nil, zerolog.Nop())

		fresh, err := o.Handle(ctx, newEvent(t, 7))
		require.NoError(t, err)
		assert.True(t, fresh)

		fresh, err = o.Handle(ctx, newEvent(t, 7))
		require.NoError(t, err)
		assert.False(t, fresh)
	})

	t.Run("should surface handler errors", func(t *testing.T) {
		o := New(NewMemoryStore(0), func(ctx context.Context, e events.Event) error {
			return errors.New("boom")
		}, zerolog.Nop())

		_, err := o.Handle(ctx, newEvent(t, 1))
		assert.Error(t, err)
	})

	t.Run("should cap the recent feed", func(t *testing.T) {
		store := NewMemoryStore(2)
		o := New(store, LogHandler(zerolog.Nop()), zerolog.Nop())
		for seq := uint64(1); seq <= 4; seq++ {
			_, err := o.Handle(ctx, newEvent(t, seq))
			require.NoError(t, err)
		}
		assert.Len(t, store.Recent(), 2)
	})
}
