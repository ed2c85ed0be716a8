package airlines

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

var at = time.Unix(1700000000, 0).UTC()

func addr(i int) models.Address {
	return models.MustAddress(fmt.Sprintf("0xa%d", i))
}

// admit submits and executes airlines 2..n from airline 1 during bootstrap.
func admit(t *testing.T, r *Registry, n int) {
	t.Helper()
	for i := 2; i <= n; i++ {
		a, err := r.Submit(addr(i), addr(1), at)
		require.NoError(t, err)
		_, err = r.Execute(a.RegIndex, addr(1), at)
		require.NoError(t, err)
	}
}

func TestFirstAirline(t *testing.T) {
	r := NewRegistry(addr(1), 4, at)

	assert.True(t, r.IsRegistered(addr(1)))
	assert.Equal(t, 1, r.RegisteredCount())

	first, err := r.Airline(addr(1))
	require.NoError(t, err)
	assert.Equal(t, at, first.SubmittedAt)
	require.NotNil(t, first.RegisteredAt)
	assert.Equal(t, at, *first.RegisteredAt)

	idx, err := r.RegIndex(addr(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), idx)

}

func TestSubmit(t *testing.T) {
	t.Run("should assign increasing indexes", func(t *testing.T) {
		r := NewRegistry(addr(1), 4, at)

		a2, err := r.Submit(addr(2), addr(1), at)
		require.NoError(t, err)
		a3, err := r.Submit(addr(3), addr(1), at)
		require.NoError(t, err)

		assert.Equal(t, uint64(1), a2.RegIndex)
		assert.Equal(t, uint64(2), a3.RegIndex)
		assert.Equal(t, StateSubmitted, a2.State)
		assert.False(t, r.IsRegistered(addr(2)))
		assert.Equal(t, uint64(3), r.SubmittedCount())
	})

	t.Run("should reject unregistered caller", func(t *testing.T) {
		r := NewRegistry(addr(1), 4, at)

		_, err := r.Submit(addr(3), addr(2), at)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("should reject double submission", func(t *testing.T) {
		r := NewRegistry(addr(1), 4, at)

		_, err := r.Submit(addr(2), addr(1), at)
		require.NoError(t, err)
		_, err = r.Submit(addr(2), addr(1), at)
		assert.ErrorIs(t, err, models.ErrAlreadySubmitted)

		_, err = r.Submit(addr(1), addr(1), at)
		assert.ErrorIs(t, err, models.ErrAlreadySubmitted)
	})

	t.Run("should not find unsubmitted airline", func(t *testing.T) {
		r := NewRegistry(addr(1), 4, at)

		_, err := r.RegIndex(addr(9))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestBootstrapAdmission(t *testing.T) {
	t.Run("should admit without votes below threshold", func(t *testing.T) {
		r := NewRegistry(addr(1), 4, at)

		a2, err := r.Submit(addr(2), addr(1), at)
		require.NoError(t, err)
		outcome, err := r.Execute(a2.RegIndex, addr(1), at)
		require.NoError(t, err)

		assert.True(t, outcome.Bootstrap)
		assert.Equal(t, 0, outcome.Votes)
		assert.True(t, r.IsRegistered(addr(2)))
	})

	t.Run("should stop auto-admission at threshold", func(t *testing.T) {
		r := NewRegistry(addr(1), 4, at)
		admit(t, r, 4)
		assert.Equal(t, 4, r.RegisteredCount())

		a5, err := r.Submit(addr(5), addr(1), at)
		require.NoError(t, err)
		outcome, err := r.Execute(a5.RegIndex, addr(1), at)

		assert.ErrorIs(t, err, models.ErrQuorumNotReached)
		assert.True(t, models.IsBenign(err))
		assert.Equal(t, 2, outcome.Required)
		assert.False(t, r.IsRegistered(addr(5)))

		a, err := r.Airline(addr(5))
		require.NoError(t, err)
		assert.Equal(t, StateSubmitted, a.State)
	})
}

func TestVoting(t *testing.T) {
	t.Run("should record votes once per voter", func(t *testing.T) {
		r := NewRegistry(addr(1), 4, at)
		admit(t, r, 4)
		a5, err := r.Submit(addr(5), addr(1), at)
		require.NoError(t, err)

		_, err = r.Vote(a5.RegIndex, addr(2))
		require.NoError(t, err)
		_, err = r.Vote(a5.RegIndex, addr(2))
		assert.ErrorIs(t, err, models.ErrDuplicateVote)

		voted, err := r.HasVoted(a5.RegIndex, addr(2))
		require.NoError(t, err)
		assert.True(t, voted)
		voted, err = r.HasVoted(a5.RegIndex, addr(3))
		require.NoError(t, err)
		assert.False(t, voted)

		a, err := r.SubmissionAt(a5.RegIndex)
		require.NoError(t, err)
		assert.Equal(t, 1, a.Votes())
	})

	t.Run("should reject self vote and unknown index", func(t *testing.T) {
		r := NewRegistry(addr(1), 4, at)
		a2, err := r.Submit(addr(2), addr(1), at)
		require.NoError(t, err)

		_, err = r.Vote(99, addr(1))
		assert.ErrorIs(t, err, models.ErrNotFound)

		// unregistered target cannot vote at all
		_, err = r.Vote(a2.RegIndex, addr(2))
		assert.ErrorIs(t, err, models.ErrUnauthorized)

		_, err = r.HasVoted(99, addr(1))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("should reject vote from unregistered airline", func(t *testing.T) {
		r := NewRegistry(addr(1), 4, at)
		a2, err := r.Submit(addr(2), addr(1), at)
		require.NoError(t, err)

		_, err = r.Vote(a2.RegIndex, addr(7))
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("should reject votes after admission", func(t *testing.T) {
		r := NewRegistry(addr(1), 4, at)
		admit(t, r, 3)
		idx, err := r.RegIndex(addr(3))
		require.NoError(t, err)

		_, err = r.Vote(idx, addr(2))
		assert.ErrorIs(t, err, models.ErrAlreadyRegistered)
		_, err = r.Execute(idx, addr(1), at)
		assert.ErrorIs(t, err, models.ErrAlreadyRegistered)
	})
}

func TestQuorumAdmission(t *testing.T) {
	setup := func(t *testing.T) (*Registry, uint64) {
		r := NewRegistry(addr(1), 4, at)
		admit(t, r, 4)

		// fifth airline needs 2 of 4
		a5, err := r.Submit(addr(5), addr(1), at)
		require.NoError(t, err)
		_, err = r.Vote(a5.RegIndex, addr(2))
		require.NoError(t, err)
		_, err = r.Vote(a5.RegIndex, addr(3))
		require.NoError(t, err)
		_, err = r.Execute(a5.RegIndex, addr(1), at)
		require.NoError(t, err)
		require.Equal(t, 5, r.RegisteredCount())

		a6, err := r.Submit(addr(6), addr(1), at)
		require.NoError(t, err)
		return r, a6.RegIndex
	}

	t.Run("should admit with 3 of 5 votes", func(t *testing.T) {
		r, idx := setup(t)

		for _, v := range []int{2, 3, 4} {
			_, err := r.Vote(idx, addr(v))
			require.NoError(t, err)
		}
		outcome, err := r.Execute(idx, addr(1), at)

		require.NoError(t, err)
		assert.Equal(t, 3, outcome.Votes)
		assert.False(t, outcome.Bootstrap)
		assert.True(t, r.IsRegistered(addr(6)))
		assert.Equal(t, 6, r.RegisteredCount())
	})

	t.Run("should refuse with 2 of 5 votes then admit after third", func(t *testing.T) {
		r, idx := setup(t)

		for _, v := range []int{2, 3} {
			_, err := r.Vote(idx, addr(v))
			require.NoError(t, err)
		}
		outcome, err := r.Execute(idx, addr(1), at)

		assert.ErrorIs(t, err, models.ErrQuorumNotReached)
		assert.Equal(t, 2, outcome.Votes)
		assert.Equal(t, 3, outcome.Required)
		assert.False(t, r.IsRegistered(addr(6)))

		_, err = r.Vote(idx, addr(4))
		require.NoError(t, err)
		_, err = r.Execute(idx, addr(1), at)
		require.NoError(t, err)
		assert.True(t, r.IsRegistered(addr(6)))
	})
}

func TestRegistryClone(t *testing.T) {
	r := NewRegistry(addr(1), 4, at)
	a2, err := r.Submit(addr(2), addr(1), at)
	require.NoError(t, err)

	snapshot := r.Clone()
	_, err = r.Execute(a2.RegIndex, addr(1), at)
	require.NoError(t, err)

	assert.True(t, r.IsRegistered(addr(2)))
	assert.False(t, snapshot.IsRegistered(addr(2)))
	assert.Equal(t, 1, snapshot.RegisteredCount())
	assert.Len(t, snapshot.Pending(), 1)
	assert.Empty(t, r.Pending())
}
