package archive

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/flightsurety/shared/events"
)

func batch(t *testing.T, seqs ...uint64) []events.Event {
	t.Helper()
	out := make([]events.Event, 0, len(seqs))
	for _, seq := range seqs {
		e, err := events.NewEvent(events.DeriveID(seq, 0), time.Unix(1700000000, 0).UTC(),
			events.AirlineDeposit, "0xa1", events.AirlineData{Airline: "0xa1", Amount: "1"}, events.Metadata{})
		require.NoError(t, err)
		e.Seq = seq
		out = append(out, *e)
	}
	return out
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("events/", batch(t, 7, 8, 9))
	assert.Equal(t, "events/00000000000000000007-00000000000000000009.ndjson", key)

	assert.Less(t, ObjectKey("events/", batch(t, 9)), ObjectKey("events/", batch(t, 10)))
}

func TestEncode(t *testing.T) {
	in := batch(t, 1, 2)
	body, err := Encode(in)
	require.NoError(t, err)

	var got []events.Event
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		var e events.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		got = append(got, e)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[1].Seq)
	assert.NotEqual(t, uuid.Nil, got[0].ID)
}

func TestNewStoreDefaultsPrefix(t *testing.T) {
	s, err := NewStore(Config{Endpoint: "localhost:9000", Bucket: "surety"})
	require.NoError(t, err)
	assert.Equal(t, "events/", s.prefix)
	assert.Equal(t, "archive", s.Name())
}
