package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/terminal-bench/flightsurety/internal/config"
	"github.com/terminal-bench/flightsurety/internal/observability"
	"github.com/terminal-bench/flightsurety/internal/observer"
	"github.com/terminal-bench/flightsurety/pkg/messaging"
)

func main() {
	configPath := flag.String("config", os.Getenv("SURETY_CONFIG"), "path to a TOML config file")
	queue := flag.String("queue", "surety-observer", "NATS queue group")
	flag.Parse()

	cfg, err := config.Read(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := observability.InitLogger("surety-observer", cfg.LogLevel, cfg.LogFormat)
	observability.RegisterMetrics()

	if cfg.NATSURL == "" {
		logger.Fatal().Msg("NATS_URL is required")
	}

	var store observer.Store = observer.NewMemoryStore(1000)
	if cfg.RedisAddr != "" {
		rs := observer.NewRedisStore(cfg.RedisAddr, 24*time.Hour, 1000)
		defer rs.Close()
		if err := rs.Ping(context.Background()); err != nil {
			logger.Fatal().Err(err).Msg("failed to reach redis")
		}
		store = rs
	}
	obs := observer.New(store, observer.LogHandler(logger), logger)

	client, err := messaging.NewClient(messaging.DefaultConfig(cfg.NATSURL, "surety-observer-"+cfg.NodeID))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to NATS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = client.QueueSubscribe(messaging.AllEvents, *queue, func(msg *nats.Msg) {
		e, err := messaging.DecodeEvent(msg)
		if err != nil {
			logger.Warn().Err(err).Str("subject", msg.Subject).Msg("undecodable event")
			return
		}
		if _, err := obs.Handle(ctx, e); err != nil {
			logger.Error().Err(err).Str("event_id", e.ID.String()).Msg("failed to handle event")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to subscribe")
	}
	logger.Info().Str("subject", messaging.AllEvents).Str("queue", *queue).Msg("observer started")

	<-ctx.Done()
	if err := client.Drain(); err != nil {
		logger.Warn().Err(err).Msg("drain failed")
	}
	logger.Info().Msg("observer stopped")
}
