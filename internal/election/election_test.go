package election

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderElection(t *testing.T) {
	endpoints := os.Getenv("ELECTION_TEST_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("ELECTION_TEST_ETCD_ENDPOINTS not set")
	}

	cfg := func(id string) Config {
		return Config{
			Endpoints: strings.Split(endpoints, ","),
			Prefix:    "/flightsurety-test/" + t.Name(),
			ID:        id,
			TTL:       5,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	first, err := New(cfg("first"), zerolog.Nop())
	require.NoError(t, err)
	defer first.Close()
	second, err := New(cfg("second"), zerolog.Nop())
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.Campaign(ctx))
	leader, err := first.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", leader)

	elected := make(chan error, 1)
	go func() { elected <- second.Campaign(ctx) }()

	select {
	case <-elected:
		t.Fatal("second must wait while first leads")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, first.Resign(ctx))
	require.NoError(t, <-elected)

	leader, err = second.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", leader)
}
