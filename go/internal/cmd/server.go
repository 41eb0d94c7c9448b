package main

import (
	"fmt"
	"net/http"

	"connectrpc.com/grpcreflect"
	"github.com/go-chi/chi"
	"github.com/mcdev12/quizduel/go/internal/answers"
	"github.com/mcdev12/quizduel/go/internal/matchmaker"
	"github.com/mcdev12/quizduel/go/internal/rpc"
	"github.com/mcdev12/quizduel/go/internal/sessions"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(services *Services, port string) *http.Server {
	router := chi.NewRouter()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register services
	registerServices(router, services)

	// Service listing for grpcurl
	setupReflection(router)

	// Websocket and state routes
	services.Gateway.RegisterRoutes(router)

	// Add health check endpoint
	setupHealthCheck(router)

	// Wrap with CORS
	handler := c.Handler(router)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(router chi.Router, services *Services) {
	// Register match service
	matchPath, matchHandler := matchmaker.NewHandler(services.Match)
	router.Handle(matchPath+"*", matchHandler)

	// Register session service
	sessionPath, sessionHandler := sessions.NewHandler(services.Sessions)
	router.Handle(sessionPath+"*", sessionHandler)

	// Register answer service
	answerPath, answerHandler := answers.NewHandler(services.Answers)
	router.Handle(answerPath+"*", answerHandler)
}

// setupReflection only lists the services: they are plain Go structs with
// no registered file descriptors, so describe calls come back NotFound.
func setupReflection(router chi.Router) {
	reflector := grpcreflect.NewStaticReflector(
		rpc.MatchServiceName,
		rpc.SessionServiceName,
		rpc.AnswerServiceName,
	)
	v1Path, v1Handler := grpcreflect.NewHandlerV1(reflector)
	router.Handle(v1Path+"*", v1Handler)
	v1AlphaPath, v1AlphaHandler := grpcreflect.NewHandlerV1Alpha(reflector)
	router.Handle(v1AlphaPath+"*", v1AlphaHandler)
}

func setupHealthCheck(router chi.Router) {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
