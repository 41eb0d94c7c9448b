package round

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizduel/go/internal/models"
)

// State is a coordinator's local view of the round lifecycle.
type State string

const (
	StateLobby           State = "LOBBY"
	StateAwaitingAnswers State = "AWAITING_ANSWERS"
	StateRoundLocked     State = "ROUND_LOCKED"
	StateTransitioning   State = "TRANSITIONING"
	StateMatchComplete   State = "MATCH_COMPLETE"
)

// ErrSessionGone is returned by Run when the session is deleted underneath it.
var ErrSessionGone = errors.New("session deleted")

// ErrNotAccepting is returned by SubmitAnswer outside AWAITING_ANSWERS.
var ErrNotAccepting = errors.New("round is not accepting answers")

// Clock is the subset of clockwork the coordinator uses.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// Config tunes a coordinator.
type Config struct {
	RoundDuration   time.Duration `yaml:"round_duration"`
	TransitionPause time.Duration `yaml:"transition_pause"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	// ResyncInterval forces a re-read even without change notifications.
	ResyncInterval time.Duration `yaml:"resync_interval"`
	// CompleteLinger keeps a finished coordinator alive to pick up late score awards.
	CompleteLinger time.Duration `yaml:"complete_linger"`
}

// DefaultConfig returns the standard 30s round with a 3s pause.
func DefaultConfig() Config {
	return Config{
		RoundDuration:   30 * time.Second,
		TransitionPause: 3 * time.Second,
		TickInterval:    time.Second,
		ResyncInterval:  5 * time.Second,
		CompleteLinger:  5 * time.Second,
	}
}

// Snapshot is what a coordinator publishes to its listeners after every change.
type Snapshot struct {
	SessionID   uuid.UUID              `json:"session_id"`
	PlayerID    string                 `json:"player_id"`
	State       State                  `json:"state"`
	Status      models.SessionStatus   `json:"status"`
	Round       int                    `json:"round"`
	RoundCount  int                    `json:"round_count"`
	SecondsLeft int                    `json:"seconds_left"`
	Question    models.QuestionContext `json:"question"`
	Players     []string               `json:"players"`
	Scores      models.Scores          `json:"scores"`
	Answered    bool                   `json:"answered"`
	Answers     int                    `json:"answers"`
}

// Redacted hides the correct option while the round is still open.
func (s Snapshot) Redacted() Snapshot {
	if s.State == StateAwaitingAnswers || s.State == StateTransitioning || s.State == StateLobby {
		s.Question.CorrectAnswer = ""
	}
	return s
}
