package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/flightsurety/internal/archive"
	"github.com/terminal-bench/flightsurety/internal/auth"
	"github.com/terminal-bench/flightsurety/internal/config"
	"github.com/terminal-bench/flightsurety/internal/election"
	"github.com/terminal-bench/flightsurety/internal/gateway"
	"github.com/terminal-bench/flightsurety/internal/journal"
	"github.com/terminal-bench/flightsurety/internal/observability"
	"github.com/terminal-bench/flightsurety/internal/relay"
	"github.com/terminal-bench/flightsurety/internal/surety"
	"github.com/terminal-bench/flightsurety/internal/telemetry"
	"github.com/terminal-bench/flightsurety/pkg/messaging"
)

func main() {
	configPath := flag.String("config", os.Getenv("SURETY_CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := observability.InitLogger("suretyd", cfg.LogLevel, cfg.LogFormat)
	observability.RegisterMetrics()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("suretyd stopped")
	}
	logger.Info().Msg("suretyd stopped")
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgerCfg, policy, identity, err := cfg.Ledger()
	if err != nil {
		return err
	}

	// Standbys block here until the current writer's lease expires.
	var leader *election.Leader
	if len(cfg.EtcdEndpoints) > 0 {
		leader, err = election.New(election.Config{
			Endpoints: cfg.EtcdEndpoints,
			ID:        cfg.NodeID,
		}, logger)
		if err != nil {
			return err
		}
		defer leader.Close()

		if err := leader.Campaign(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	store, durable, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	data := surety.NewData(ledgerCfg)
	app := surety.NewApp(surety.AppConfig{
		Identity: identity,
		Data:     data,
		Store:    store,
		Policy:   policy,
		Logger:   logger,
	})

	replayed, err := app.Replay(ctx)
	if err != nil {
		return err
	}
	logger.Info().Int("commands", replayed).Uint64("head", app.Head()).Msg("ledger restored")

	if !data.IsAuthorized(identity) {
		if err := app.AuthorizeCaller(ctx, surety.Call{Caller: ledgerCfg.Owner}, identity); err != nil {
			return err
		}
		logger.Info().Str("contract", identity.String()).Msg("app authorized on data")
	}

	sinks, cursors, closeSinks, err := openSinks(ctx, cfg, durable, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	if cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set, authenticated routes will reject every request")
	}
	gw := gateway.NewGateway(gateway.DefaultConfig(cfg.Addr), app, auth.NewService(cfg.JWTSecret), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(gw.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return gw.Shutdown(shutdownCtx)
	})
	if len(sinks) > 0 {
		rel := relay.New(data.Log(), cursors, relay.Config{}, logger, sinks...)
		g.Go(func() error { return rel.Run(gctx) })
	}
	if leader != nil {
		g.Go(func() error { return leader.Hold(gctx) })
	}

	err = g.Wait()
	if errors.Is(err, election.ErrLeadershipLost) {
		logger.Error().Msg("leadership lost, stepping down")
	}
	return err
}

// openJournal returns the Postgres journal when DATABASE_URL is set and an
// in-memory one otherwise. The flag reports whether it survives a restart.
func openJournal(ctx context.Context, cfg config.Config, logger zerolog.Logger) (journal.Store, bool, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, journal is in memory")
		return journal.NewMemoryStore(), false, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store, err := journal.OpenPostgres(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, false, err
	}
	return store, true, nil
}

func openSinks(ctx context.Context, cfg config.Config, durable bool, logger zerolog.Logger) ([]relay.Sink, relay.Cursors, func(), error) {
	var (
		sinks   []relay.Sink
		cursors relay.Cursors
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.NATSURL != "" {
		msgCfg := messaging.DefaultConfig(cfg.NATSURL, "suretyd-"+cfg.NodeID)
		msgCfg.JetStream = cfg.NATSJetStream
		client, err := messaging.NewClient(msgCfg)
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		closers = append(closers, func() { client.Drain() })
		if cfg.NATSJetStream {
			if err := client.EnsureStream(messaging.StreamName, messaging.AllEvents); err != nil {
				closeAll()
				return nil, nil, nil, err
			}
		}
		sinks = append(sinks, messaging.NewEventPublisher(client))
	}

	if cfg.InfluxURL != "" {
		writer := telemetry.NewWriter(telemetry.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		})
		closers = append(closers, writer.Close)
		if err := writer.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("influxdb not reachable, writes will be retried")
		}
		sinks = append(sinks, writer)
	}

	if cfg.ArchiveEndpoint != "" {
		store, err := archive.NewStore(archive.Config{
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			Secure:    cfg.ArchiveSecure,
		})
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("archive bucket not ready, writes will be retried")
		}
		sinks = append(sinks, store)
	}

	// A saved cursor only lines up with a log rebuilt from a durable journal.
	if cfg.RedisAddr != "" && durable {
		rc := relay.NewRedisCursors(cfg.RedisAddr, "surety:")
		closers = append(closers, func() { rc.Close() })
		if err := rc.Ping(ctx); err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		cursors = rc
	} else if cfg.RedisAddr != "" {
		logger.Warn().Msg("journal is in memory, ignoring redis relay cursors")
	}

	return sinks, cursors, closeAll, nil
}
