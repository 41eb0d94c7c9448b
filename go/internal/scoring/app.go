package scoring

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Policy converts a correct answer and its remaining time into points.
type Policy struct {
	BasePoints       int `yaml:"base_points"`
	BonusIntervalSec int `yaml:"bonus_interval_sec"`
	RoundDurationSec int `yaml:"round_duration_sec"`
}

// DefaultPolicy returns 10 base points plus one bonus point per 5 seconds left of 30.
func DefaultPolicy() Policy {
	return Policy{
		BasePoints:       10,
		BonusIntervalSec: 5,
		RoundDurationSec: 30,
	}
}

// Bonus is monotonic non-decreasing in timeLeft and zero at zero.
func (p Policy) Bonus(timeLeft int) int {
	if timeLeft <= 0 || p.BonusIntervalSec <= 0 {
		return 0
	}
	if p.RoundDurationSec > 0 && timeLeft > p.RoundDurationSec {
		timeLeft = p.RoundDurationSec
	}
	return timeLeft / p.BonusIntervalSec
}

// Points returns the award for one answer. Incorrect answers earn nothing.
func (p Policy) Points(isCorrect bool, timeLeft int) int {
	if !isCorrect {
		return 0
	}
	return p.BasePoints + p.Bonus(timeLeft)
}

// Repository defines what the accumulator needs from the session store
type Repository interface {
	AddScore(ctx context.Context, id uuid.UUID, playerID string, points int) (*models.Session, error)
}

// Accumulator folds awards into a session's score map.
type Accumulator struct {
	repo   Repository
	policy Policy
}

// NewAccumulator creates a new score Accumulator
func NewAccumulator(repo Repository, policy Policy) *Accumulator {
	return &Accumulator{
		repo:   repo,
		policy: policy,
	}
}

// Policy returns the configured scoring policy.
func (a *Accumulator) Policy() Policy {
	return a.policy
}

// Points prices one answer. The answer store credits the result together with
// the answer itself.
func (a *Accumulator) Points(isCorrect bool, timeLeft int) int {
	return a.policy.Points(isCorrect, timeLeft)
}

// Award credits playerID directly and returns the session's scores afterwards.
// An incorrect answer is a no-op that returns the current scores.
func (a *Accumulator) Award(ctx context.Context, session *models.Session, playerID string, isCorrect bool, timeLeft int) (models.Scores, error) {
	if session == nil {
		return nil, fmt.Errorf("session is required")
	}

	points := a.policy.Points(isCorrect, timeLeft)
	if points == 0 {
		return session.Scores.Clone(), nil
	}

	updated, err := a.repo.AddScore(ctx, session.ID, playerID, points)
	if err != nil {
		return nil, fmt.Errorf("failed to add score: %w", err)
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("player_id", playerID).
		Int("points", points).
		Int("total", updated.Scores[playerID]).
		Msg("score awarded")

	return updated.Scores.Clone(), nil
}
