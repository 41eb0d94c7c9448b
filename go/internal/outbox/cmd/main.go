package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/bootstrap"
	"github.com/mcdev12/quizduel/go/internal/changefeed"
	"github.com/mcdev12/quizduel/go/internal/config"
	"github.com/mcdev12/quizduel/go/internal/dbconfig"
	"github.com/mcdev12/quizduel/go/internal/outbox"
)

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	bootstrap.SetupLogging(config.GetEnv("LOG_LEVEL", "debug"))

	events := changefeed.DefaultConfig()
	if path := config.GetEnv("CONFIG_PATH", "config.yaml"); path != "" {
		game, err := config.Load(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("using default event stream config")
		} else {
			events = game.Events
		}
	}
	events.URL = config.GetEnv("NATS_URL", events.URL)

	// DB config
	cfg := dbconfig.NewConfigFromEnv()
	dsn := cfg.DSN()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")

	// signal-aware context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Publisher: JetStream unless PUBLISHER=log
	var (
		publisher outbox.Publisher
		nc        *nats.Conn
	)
	if config.GetEnv("PUBLISHER", "jetstream") == "log" {
		publisher = outbox.LogPublisher{}
	} else {
		conn, js, err := changefeed.Connect(ctx, events)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to JetStream")
		}
		defer conn.Close()
		nc = conn
		publisher = outbox.NewJetStreamPublisher(js, events)
	}

	clock := clockwork.NewRealClock()
	repo := outbox.NewRepository(db)
	relay := outbox.NewRelay(repo, publisher, clock, outbox.DefaultRelayConfig())

	// Listener config
	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = dsn
	if iv := config.GetEnv("FALLBACK_INTERVAL", ""); iv != "" {
		if d, err := time.ParseDuration(iv); err == nil {
			ltCfg.FallbackInterval = d
		}
	}

	listener, err := outbox.NewListener(relay, ltCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}
	defer func() {
		if err := listener.Stop(); err != nil {
			log.Error().Err(err).Msg("stop listener")
		}
	}()

	// health endpoint
	health := outbox.NewHealthChecker(relay, listener, db, repo, nc, clock, 5*time.Minute)
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.GetEnv("HEALTH_PORT", "8082")),
		Handler: mux,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("outbox health listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	// run listener
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting realtime listener")
		errCh <- listener.Start(ctx)
	}()

	// wait for shutdown or error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("listener exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
