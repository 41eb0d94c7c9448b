package main

import (
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizduel/go/internal/answers"
	"github.com/mcdev12/quizduel/go/internal/bootstrap"
	"github.com/mcdev12/quizduel/go/internal/config"
	"github.com/mcdev12/quizduel/go/internal/gateway"
	"github.com/mcdev12/quizduel/go/internal/matchmaker"
	"github.com/mcdev12/quizduel/go/internal/questions"
	"github.com/mcdev12/quizduel/go/internal/round"
	"github.com/mcdev12/quizduel/go/internal/scoring"
	"github.com/mcdev12/quizduel/go/internal/sessions"
)

type Services struct {
	Match    *matchmaker.Service
	Sessions *sessions.Service
	Answers  *answers.Service
	Gateway  *gateway.Service
	Host     *round.Host
}

func setupServices(infra *bootstrap.Infra, game *config.Game, cfg ServerConfig, clock clockwork.Clock) (*Services, error) {
	// Wire up dependency injection chain
	// Store → App layer → Service layer

	// Question bank
	bankApp := questions.NewApp(infra.Questions, nil)

	// Scoring and answers
	accumulator := scoring.NewAccumulator(infra.Store, game.Scoring)
	ledgerApp := answers.NewApp(infra.Store, accumulator, clock, game.Match.RoundDurationSec)
	answersService := answers.NewService(ledgerApp)

	// Matchmaker
	matchApp, err := matchmaker.NewApp(infra.Store, bankApp, game.Match)
	if err != nil {
		return nil, err
	}
	matchService := matchmaker.NewService(matchApp)

	// Sessions
	sessionsApp := sessions.NewApp(infra.Store)
	sessionsService := sessions.NewService(sessionsApp)

	// Round coordinators and the websocket gateway that attaches them
	host := round.NewHost(infra.Store, bankApp, ledgerApp, clock, game.Round)
	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.PublicURL = cfg.PublicURL
	gatewayService := gateway.NewService(gatewayConfig, sessionsApp, host)

	return &Services{
		Match:    matchService,
		Sessions: sessionsService,
		Answers:  answersService,
		Gateway:  gatewayService,
		Host:     host,
	}, nil
}
