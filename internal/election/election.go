package election

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// ErrLeadershipLost is returned once the etcd session backing leadership
// expires.
var ErrLeadershipLost = errors.New("leadership lost")

// Config holds election settings
type Config struct {
	Endpoints   []string
	Prefix      string
	ID          string
	TTL         int
	DialTimeout time.Duration
}

// Leader makes one process the single writer. Standbys block in Campaign
// and take over when the leader's session expires.
type Leader struct {
	client   *clientv3.Client
	session  *concurrency.Session
	election *concurrency.Election
	id       string
	logger   zerolog.Logger
}

// New connects to etcd and opens a lease-backed session
func New(cfg Config, logger zerolog.Logger) (*Leader, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 10
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/flightsurety/leader"
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	session, err := concurrency.NewSession(client, concurrency.WithTTL(cfg.TTL))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to open etcd session: %w", err)
	}

	return &Leader{
		client:   client,
		session:  session,
		election: concurrency.NewElection(session, cfg.Prefix),
		id:       cfg.ID,
		logger:   logger.With().Str("component", "election").Str("id", cfg.ID).Logger(),
	}, nil
}

// Campaign blocks until this process is leader or ctx is done
func (l *Leader) Campaign(ctx context.Context) error {
	l.logger.Info().Msg("campaigning for leadership")
	if err := l.election.Campaign(ctx, l.id); err != nil {
		return fmt.Errorf("campaign failed: %w", err)
	}
	l.logger.Info().Msg("elected leader")
	return nil
}

// Done is closed when leadership can no longer be guaranteed
func (l *Leader) Done() <-chan struct{} {
	return l.session.Done()
}

// Hold returns ErrLeadershipLost when the session ends, or nil when ctx
// is cancelled first.
func (l *Leader) Hold(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-l.session.Done():
		l.logger.Error().Msg("etcd session expired")
		return ErrLeadershipLost
	}
}

// Current returns the id of the current leader
func (l *Leader) Current(ctx context.Context) (string, error) {
	resp, err := l.election.Leader(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read leader: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return "", nil
	}
	return string(resp.Kvs[0].Value), nil
}

// Resign gives up leadership
func (l *Leader) Resign(ctx context.Context) error {
	return l.election.Resign(ctx)
}

func (l *Leader) Close() error {
	l.session.Close()
	return l.client.Close()
}
