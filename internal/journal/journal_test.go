package journal

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/flightsurety/pkg/decimal"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

func command(seq uint64) Command {
	return Command{
		Seq:    seq,
		Op:     "pay_airline",
		Caller: models.MustAddress("0xa1"),
		Value:  decimal.MustAmount("2.5"),
		Args:   json.RawMessage(`{"index":3}`),
		At:     time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC),
	}
}

// exercise runs the Store contract against s, which must start empty
func exercise(t *testing.T, s Store) {
	ctx := context.Background()

	head, err := s.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), head)

	t.Run("should accept commands in order", func(t *testing.T) {
		for seq := uint64(1); seq <= 3; seq++ {
			require.NoError(t, s.Append(ctx, command(seq)))
		}
		head, err := s.Head(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), head)
	})

	t.Run("should reject gaps and duplicates", func(t *testing.T) {
		assert.ErrorIs(t, s.Append(ctx, command(5)), ErrSequence)
		assert.ErrorIs(t, s.Append(ctx, command(3)), ErrSequence)
	})

	t.Run("should load after a cursor", func(t *testing.T) {
		cmds, err := s.Load(ctx, 1)
		require.NoError(t, err)
		require.Len(t, cmds, 2)
		assert.Equal(t, uint64(2), cmds[0].Seq)
		assert.Equal(t, uint64(3), cmds[1].Seq)

		got := cmds[0]
		want := command(2)
		assert.Equal(t, want.Op, got.Op)
		assert.Equal(t, want.Caller, got.Caller)
		assert.True(t, want.Value.Equal(got.Value))
		assert.JSONEq(t, string(want.Args), string(got.Args))
		assert.True(t, want.At.Equal(got.At))

		cmds, err = s.Load(ctx, 3)
		require.NoError(t, err)
		assert.Empty(t, cmds)
	})
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore())
}

func TestMemoryStoreLoadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Append(ctx, command(1)))

	cmds, err := s.Load(ctx, 0)
	require.NoError(t, err)
	cmds[0].Op = "mutated"

	again, err := s.Load(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "pay_airline", again[0].Op)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("JOURNAL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("JOURNAL_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.ExecContext(ctx, `DELETE FROM surety_commands`)
	require.NoError(t, err)

	exercise(t, s)
}
