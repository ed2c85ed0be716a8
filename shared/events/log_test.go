package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvent(t *testing.T, typ string) Event {
	t.Helper()
	e, err := NewEvent(uuid.New(), time.Now(), typ, "agg", AirlineData{Airline: "0x01"}, Metadata{Source: "test"})
	require.NoError(t, err)
	return *e
}

func TestLogAppend(t *testing.T) {
	t.Run("should assign dense sequence numbers", func(t *testing.T) {
		log := NewLog()

		head := log.Append(newTestEvent(t, AirlineSubmitted), newTestEvent(t, AirlineRegistered))
		assert.Equal(t, uint64(2), head)

		head = log.Append(newTestEvent(t, FlightRegistered))
		assert.Equal(t, uint64(3), head)

		all := log.After(0, 0)
		require.Len(t, all, 3)
		for i, e := range all {
			assert.Equal(t, uint64(i+1), e.Seq)
		}
		assert.Equal(t, FlightRegistered, all[2].Type)
	})

	t.Run("should page from a cursor", func(t *testing.T) {
		log := NewLog()
		for i := 0; i < 5; i++ {
			log.Append(newTestEvent(t, AirlineDeposit))
		}

		page := log.After(1, 2)
		require.Len(t, page, 2)
		assert.Equal(t, uint64(2), page[0].Seq)
		assert.Equal(t, uint64(3), page[1].Seq)

		assert.Empty(t, log.After(5, 0))
		assert.Empty(t, log.After(99, 0))
	})

	t.Run("should return copies", func(t *testing.T) {
		log := NewLog()
		log.Append(newTestEvent(t, AirlineDeposit))

		page := log.After(0, 0)
		page[0].Type = "mutated"

		assert.Equal(t, AirlineDeposit, log.After(0, 0)[0].Type)
	})
}

func TestLogWait(t *testing.T) {
	t.Run("should wake on append", func(t *testing.T) {
		log := NewLog()
		done := make(chan error, 1)

		go func() {
			done <- log.Wait(context.Background(), 0)
		}()

		time.Sleep(10 * time.Millisecond)
		log.Append(newTestEvent(t, FlightRegistered))

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("wait did not return")
		}
	})

	t.Run("should honour context", func(t *testing.T) {
		log := NewLog()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		assert.ErrorIs(t, log.Wait(ctx, 0), context.DeadlineExceeded)
	})
}

func TestEventEnvelope(t *testing.T) {
	e := newTestEvent(t, AirlineRegistered)

	var data AirlineData
	require.NoError(t, e.ParseData(&data))
	assert.Equal(t, "0x01", data.Airline)
	assert.Equal(t, "surety.airline.registered", e.Subject())
	assert.NotEqual(t, e.ID, newTestEvent(t, AirlineRegistered).ID)
}

func TestDeriveID(t *testing.T) {
	assert.Equal(t, DeriveID(7, 0), DeriveID(7, 0))
	assert.NotEqual(t, DeriveID(7, 0), DeriveID(7, 1))
	assert.NotEqual(t, DeriveID(7, 0), DeriveID(8, 0))
	assert.Equal(t, DeriveEntryID(7), DeriveEntryID(7))
	assert.NotEqual(t, DeriveEntryID(7), DeriveEntryID(8))
	assert.NotEqual(t, DeriveID(7, 0), DeriveEntryID(7))
}
