package matchmaker

import (
	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/questions"
	"github.com/mcdev12/quizduel/go/internal/store"
)

var (
	ErrNotFound              = store.ErrNotFound
	ErrInsufficientQuestions = questions.ErrInsufficientQuestions
)

// Config holds the match shape handed to every new session.
type Config struct {
	MaxPlayers       int              `yaml:"max_players"`
	RoundCount       int              `yaml:"round_count"`
	RoundDurationSec int              `yaml:"round_duration_sec"`
	Filter           questions.Filter `yaml:"question_filter"`
}

// DefaultConfig returns the standard two-player, five-round match.
func DefaultConfig() Config {
	return Config{
		MaxPlayers:       2,
		RoundCount:       5,
		RoundDurationSec: 30,
	}
}

// MatchStatus is what a waiting player polls for.
type MatchStatus struct {
	SessionID uuid.UUID            `json:"session_id"`
	Status    models.SessionStatus `json:"status"`
	Players   []string             `json:"players"`
	Ready     bool                 `json:"ready"`
}

type FindOrCreateSessionRequest struct {
	PlayerID string `json:"player_id"`
}

type FindOrCreateSessionResponse struct {
	Session *models.Session `json:"session"`
}

type CheckMatchStatusRequest struct {
	SessionID string `json:"session_id"`
}

type CheckMatchStatusResponse struct {
	Status *MatchStatus `json:"status"`
}

type CancelRequest struct {
	SessionID string `json:"session_id"`
	PlayerID  string `json:"player_id"`
}
