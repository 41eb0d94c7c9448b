package answers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Repository defines what the ledger needs from the session store
type Repository interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	CreateAnswer(ctx context.Context, answer models.Answer) (*models.Answer, error)
	ListAnswers(ctx context.Context, sessionID uuid.UUID, round *int) ([]models.Answer, error)
}

// Scorer prices an answer before it is stored
type Scorer interface {
	Points(isCorrect bool, timeLeft int) int
}

// App is the answer ledger.
type App struct {
	repo             Repository
	scorer           Scorer
	clock            clockwork.Clock
	roundDurationSec int
}

// NewApp creates a new answer ledger. scorer may be nil.
func NewApp(repo Repository, scorer Scorer, clock clockwork.Clock, roundDurationSec int) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:             repo,
		scorer:           scorer,
		clock:            clock,
		roundDurationSec: roundDurationSec,
	}
}

// Submit records an answer together with its points. The store credits the
// points in the same write, so a failed Submit leaves nothing behind and can be retried.
// ErrDuplicateAnswer means the player already answered this round; callers treat it as success.
func (a *App) Submit(ctx context.Context, req SubmitAnswerRequest) (*models.Answer, error) {
	if err := a.validateSubmitRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	session, err := a.repo.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !session.HasPlayer(req.PlayerID) {
		return nil, fmt.Errorf("validation failed: player %s is not in session %s", req.PlayerID, session.ID)
	}
	if session.Status != models.SessionStatusActive || req.RoundNumber != session.CurrentRound {
		return nil, ErrRoundClosed
	}

	timeLeft := req.TimeLeft
	if timeLeft < 0 {
		timeLeft = 0
	}
	if a.roundDurationSec > 0 && timeLeft > a.roundDurationSec {
		timeLeft = a.roundDurationSec
	}

	isCorrect := req.AnswerText == session.Question.CorrectAnswer
	points := 0
	if a.scorer != nil {
		points = a.scorer.Points(isCorrect, timeLeft)
	}

	answer, err := a.repo.CreateAnswer(ctx, models.Answer{
		ID:                   uuid.New(),
		SessionID:            req.SessionID,
		PlayerID:             req.PlayerID,
		RoundNumber:          req.RoundNumber,
		AnswerText:           req.AnswerText,
		IsCorrect:            isCorrect,
		TimeLeftAtSubmission: timeLeft,
		Points:               points,
		SubmittedAt:          a.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateAnswer) || errors.Is(err, ErrRoundClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	log.Info().
		Str("session_id", answer.SessionID.String()).
		Str("player_id", answer.PlayerID).
		Int("round", answer.RoundNumber).
		Bool("correct", answer.IsCorrect).
		Int("time_left", answer.TimeLeftAtSubmission).
		Int("points", answer.Points).
		Msg("answer recorded")

	return answer, nil
}

// ListRoundAnswers returns the answers recorded for one round
func (a *App) ListRoundAnswers(ctx context.Context, sessionID uuid.UUID, round int) ([]models.Answer, error) {
	answers, err := a.repo.ListAnswers(ctx, sessionID, &round)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	return answers, nil
}

// HasAnswered reports whether playerID has an answer for round.
func HasAnswered(answers []models.Answer, playerID string, round int) bool {
	for _, ans := range answers {
		if ans.PlayerID == playerID && ans.RoundNumber == round {
			return true
		}
	}
	return false
}

// AllAnswered is true iff every seated player has exactly one answer for round.
func AllAnswered(session *models.Session, answers []models.Answer, round int) bool {
	if session == nil || len(session.Players) == 0 {
		return false
	}
	counts := make(map[string]int, len(session.Players))
	for _, ans := range answers {
		if ans.RoundNumber == round {
			counts[ans.PlayerID]++
		}
	}
	for _, p := range session.Players {
		if counts[p] != 1 {
			return false
		}
	}
	return true
}

func (a *App) validateSubmitRequest(req SubmitAnswerRequest) error {
	if req.SessionID == uuid.Nil {
		return fmt.Errorf("session_id is required")
	}
	if req.PlayerID == "" {
		return fmt.Errorf("player_id is required")
	}
	if req.RoundNumber < 0 {
		return fmt.Errorf("round_number must not be negative")
	}
	if req.AnswerText == "" {
		return fmt.Errorf("answer is required")
	}
	return nil
}
