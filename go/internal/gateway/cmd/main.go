package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizduel/go/internal/answers"
	"github.com/mcdev12/quizduel/go/internal/bootstrap"
	"github.com/mcdev12/quizduel/go/internal/config"
	"github.com/mcdev12/quizduel/go/internal/gateway"
	"github.com/mcdev12/quizduel/go/internal/questions"
	"github.com/mcdev12/quizduel/go/internal/round"
	"github.com/mcdev12/quizduel/go/internal/scoring"
	"github.com/mcdev12/quizduel/go/internal/sessions"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	bootstrap.SetupLogging(config.GetEnv("LOG_LEVEL", "info"))

	// Get configuration
	port := config.GetEnv("GATEWAY_PORT", "8081")
	backend := config.GetEnv("STORE_BACKEND", config.BackendPostgres)
	if backend == config.BackendMemory {
		log.Fatal().Msg("a standalone gateway needs a shared store, set STORE_BACKEND to postgres or redis")
	}

	game, err := config.Load(config.GetEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load game config")
	}
	game.Events.URL = config.GetEnv("NATS_URL", game.Events.URL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	infra, err := bootstrap.Open(ctx, bootstrap.Options{StoreBackend: backend}, game, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up storage")
	}
	defer infra.Close()

	log.Info().
		Str("store", backend).
		Str("nats_url", game.Events.URL).
		Str("port", port).
		Msg("starting session gateway")

	// Coordinators need the bank and the ledger to advance rounds and record answers
	bankApp := questions.NewApp(infra.Questions, nil)
	accumulator := scoring.NewAccumulator(infra.Store, game.Scoring)
	ledgerApp := answers.NewApp(infra.Store, accumulator, clock, game.Match.RoundDurationSec)
	host := round.NewHost(infra.Store, bankApp, ledgerApp, clock, game.Round)
	defer host.Shutdown()

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.PublicURL = config.GetEnv("PUBLIC_URL", gatewayConfig.PublicURL)
	gatewayService := gateway.NewService(gatewayConfig, sessions.NewApp(infra.Store), host)
	go gatewayService.Start(ctx)

	// Setup HTTP server
	router := chi.NewRouter()
	router.Use(gateway.CORSMiddleware)
	gatewayService.RegisterRoutes(router)

	// Add health check
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Add service info
	router.Get("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service":      "session-gateway",
			"coordinators": host.Running(),
			"connections":  gatewayService.GetStats(),
		})
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: router,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("gateway server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway shutdown failed")
	}
}
