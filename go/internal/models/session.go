package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus defines the lifecycle status of a game session.
type SessionStatus string

const (
	SessionStatusOpen     SessionStatus = "OPEN"
	SessionStatusActive   SessionStatus = "ACTIVE"
	SessionStatusFinished SessionStatus = "FINISHED"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusOpen, SessionStatusActive, SessionStatusFinished:
		return true
	}
	return false
}

func (s SessionStatus) rank() int {
	switch s {
	case SessionStatusOpen:
		return 0
	case SessionStatusActive:
		return 1
	case SessionStatusFinished:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next keeps the status monotonic.
// Staying in the same status is allowed.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() >= s.rank()
}

// QuestionContext is the denormalized snapshot of the active round's question.
type QuestionContext struct {
	QuestionID    uuid.UUID          `json:"question_id"`
	Text          string             `json:"text"`
	Options       []string           `json:"options"`
	CorrectAnswer string             `json:"correct_answer"`
	Category      QuestionCategory   `json:"category,omitempty"`
	Difficulty    QuestionDifficulty `json:"difficulty,omitempty"`
}

// Session is the shared record for one match.
type Session struct {
	ID                uuid.UUID       `json:"id"`
	HostID            string          `json:"host_id"`
	Players           []string        `json:"players"`
	Status            SessionStatus   `json:"status"`
	SelectedQuestions []uuid.UUID     `json:"selected_questions"`
	CurrentRound      int             `json:"current_round"`
	Question          QuestionContext `json:"current_question"`
	TimeLeft          int             `json:"time_left"`
	Scores            Scores          `json:"scores"`
	LastActionTime    time.Time       `json:"last_action_time"`
	// RoundStartedAt is when the current round opened. Only activation and
	// round advances move it.
	RoundStartedAt    time.Time       `json:"round_started_at"`
	CreatedAt         time.Time       `json:"created_at"`
}

// RoundCount is the number of rounds the session will play.
func (s *Session) RoundCount() int {
	return len(s.SelectedQuestions)
}

// IsLastRound reports whether round is the final round index.
func (s *Session) IsLastRound(round int) bool {
	return round >= s.RoundCount()-1
}

// HasPlayer reports whether playerID is seated in the session.
func (s *Session) HasPlayer(playerID string) bool {
	for _, p := range s.Players {
		if p == playerID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Players = append([]string(nil), s.Players...)
	c.SelectedQuestions = append([]uuid.UUID(nil), s.SelectedQuestions...)
	c.Question.Options = append([]string(nil), s.Question.Options...)
	c.Scores = s.Scores.Clone()
	return &c
}

// Public is the copy handed to players: the correct answer stays hidden until the match is over.
func (s *Session) Public() *Session {
	c := s.Clone()
	if c != nil && c.Status != SessionStatusFinished {
		c.Question.CorrectAnswer = ""
	}
	return c
}
