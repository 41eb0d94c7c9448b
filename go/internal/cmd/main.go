package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizduel/go/internal/bootstrap"
	"github.com/mcdev12/quizduel/go/internal/config"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := loadServerConfig()
	bootstrap.SetupLogging(cfg.LogLevel)

	game, err := config.Load(cfg.ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ConfigPath).Msg("failed to load game config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	infra, err := bootstrap.Open(ctx, bootstrap.Options{
		StoreBackend:   cfg.StoreBackend,
		MigrationsPath: cfg.MigrationsPath,
		Migrate:        true,
	}, game, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up storage")
	}
	defer infra.Close()

	services, err := setupServices(infra, game, cfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}

	go services.Gateway.Start(ctx)

	server := setupServer(services, cfg.Port)
	go func() {
		log.Info().Str("addr", server.Addr).Str("store", cfg.StoreBackend).Msg("quizduel server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	services.Host.Shutdown()
}
