package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/flightsurety/shared/events"
)

type published struct {
	subject string
	payload []byte
	msgID   string
}

type fakePublisher struct {
	msgs   []published
	failAt int
}

func (f *fakePublisher) publish(ctx context.Context, subject string, payload []byte, msgID string) error {
	if f.failAt > 0 && len(f.msgs)+1 == f.failAt {
		return errors.New("connection lost")
	}
	f.msgs = append(f.msgs, published{subject, payload, msgID})
	return nil
}

func batch(t *testing.T, n int) []events.Event {
	t.Helper()
	var out []events.Event
	for i := 0; i < n; i++ {
		e, err := events.NewEvent(events.DeriveID(uint64(i+1), 0), time.Now(), events.FlightRegistered, "0xabc",
			events.FlightData{FlightKey: "0xabc", Name: "SU100"}, events.Metadata{Source: "test"})
		require.NoError(t, err)
		e.Seq = uint64(i + 1)
		out = append(out, *e)
	}
	return out
}

func TestEventPublisher(t *testing.T) {
	t.Run("should publish each event on its subject with its id", func(t *testing.T) {
		fake := &fakePublisher{}
		p := &EventPublisher{pub: fake}

		evts := batch(t, 2)
		require.NoError(t, p.Deliver(context.Background(), evts))

		require.Len(t, fake.msgs, 2)
		assert.Equal(t, "surety.flight.registered", fake.msgs[0].subject)
		assert.Equal(t, evts[1].ID.String(), fake.msgs[1].msgID)

		decoded, err := DecodeEvent(&nats.Msg{Subject: fake.msgs[0].subject, Data: fake.msgs[0].payload})
		require.NoError(t, err)
		assert.Equal(t, evts[0].ID, decoded.ID)
		assert.Equal(t, uint64(1), decoded.Seq)
	})

	t.Run("should stop at the first failure", func(t *testing.T) {
		fake := &fakePublisher{failAt: 2}
		p := &EventPublisher{pub: fake}

		err := p.Deliver(context.Background(), batch(t, 3))
		assert.Error(t, err)
		assert.Len(t, fake.msgs, 1)
	})
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	_, err := DecodeEvent(&nats.Msg{Subject: "surety.x", Data: []byte("{")})
	assert.Error(t, err)

	e, err := DecodeEvent(&nats.Msg{Data: []byte(`{"id":"` + uuid.Nil.String() + `","type":"x"}`)})
	require.NoError(t, err)
	assert.Equal(t, "x", e.Type)
}
