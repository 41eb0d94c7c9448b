package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/events"
	"github.com/mcdev12/quizduel/go/internal/models"
)

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrPreconditionFailed is returned when a conditional update's precondition does not hold.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrDuplicateAnswer is returned when an answer already exists for (session, player, round).
	ErrDuplicateAnswer = errors.New("answer already submitted for this round")
	// ErrRoundClosed is returned when an answer targets a round that is no longer open.
	ErrRoundClosed = errors.New("round closed")
)

// SessionFilter narrows ListSessions. Zero values are ignored.
type SessionFilter struct {
	Status *models.SessionStatus
	HostID string
	// PlayersBelow keeps sessions with fewer than this many players.
	PlayersBelow int
	Limit        int
}

// Matches reports whether s satisfies the filter.
func (f SessionFilter) Matches(s *models.Session) bool {
	if f.Status != nil && s.Status != *f.Status {
		return false
	}
	if f.HostID != "" && s.HostID != f.HostID {
		return false
	}
	if f.PlayersBelow > 0 && len(s.Players) >= f.PlayersBelow {
		return false
	}
	return true
}

// Precondition guards an UpdateSession. Every non-nil field must equal the stored value.
type Precondition struct {
	CurrentRound *int
	Status       *models.SessionStatus
	PlayerCount  *int
}

// Holds reports whether the precondition is satisfied by s.
func (p Precondition) Holds(s *models.Session) bool {
	if p.CurrentRound != nil && s.CurrentRound != *p.CurrentRound {
		return false
	}
	if p.Status != nil && s.Status != *p.Status {
		return false
	}
	if p.PlayerCount != nil && len(s.Players) != *p.PlayerCount {
		return false
	}
	return true
}

// SessionChanges lists the fields an UpdateSession replaces. Nil fields are left alone.
type SessionChanges struct {
	Players      []string
	Status       *models.SessionStatus
	CurrentRound *int
	TimeLeft     *int
	Question     *models.QuestionContext
	Scores       models.Scores
	// LastActionTime defaults to the store's clock when zero.
	LastActionTime time.Time
}

// Apply writes the changes onto s.
func (c SessionChanges) Apply(s *models.Session, now time.Time) {
	if c.Players != nil {
		s.Players = append([]string(nil), c.Players...)
	}
	if c.Status != nil {
		s.Status = *c.Status
	}
	if c.CurrentRound != nil {
		s.CurrentRound = *c.CurrentRound
	}
	if c.TimeLeft != nil {
		s.TimeLeft = *c.TimeLeft
	}
	if c.Question != nil {
		q := *c.Question
		q.Options = append([]string(nil), c.Question.Options...)
		s.Question = q
	}
	if c.Scores != nil {
		s.Scores = c.Scores.Clone()
	}
	if c.LastActionTime.IsZero() {
		s.LastActionTime = now
	} else {
		s.LastActionTime = c.LastActionTime
	}
	if c.OpensRound() {
		s.RoundStartedAt = s.LastActionTime
	}
}

// OpensRound reports whether the change starts a round, either by activating
// the session or by advancing it. Other writes leave RoundStartedAt alone.
func (c SessionChanges) OpensRound() bool {
	return c.CurrentRound != nil || (c.Status != nil && *c.Status == models.SessionStatusActive)
}

// EventType classifies the change for watchers.
func (c SessionChanges) EventType() string {
	switch {
	case c.Status != nil && *c.Status == models.SessionStatusFinished:
		return events.EventTypeMatchFinished
	case c.CurrentRound != nil:
		return events.EventTypeRoundAdvanced
	case c.Players != nil:
		return events.EventTypePlayersChanged
	}
	return events.EventTypeSessionUpdated
}

// CreateSessionRequest holds the fields of a new session.
type CreateSessionRequest struct {
	HostID            string
	Players           []string
	Status            models.SessionStatus
	SelectedQuestions []uuid.UUID
	Question          models.QuestionContext
	TimeLeft          int
	Scores            models.Scores
}

// SessionStore is the shared session record substrate.
type SessionStore interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]models.Session, error)
	CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error)
	// UpdateSession applies changes only if pre holds, else returns ErrPreconditionFailed.
	UpdateSession(ctx context.Context, id uuid.UUID, pre Precondition, changes SessionChanges) (*models.Session, error)
	// AddScore atomically adds points to one player's score without a precondition.
	AddScore(ctx context.Context, id uuid.UUID, playerID string, points int) (*models.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// AnswerStore holds answers. CreateAnswer returns ErrDuplicateAnswer on a repeated
// (session, player, round) and ErrRoundClosed when the round is no longer current.
// A stored answer's Points are added to the player's score in the same atomic
// step, so an answer is never recorded without its award.
type AnswerStore interface {
	CreateAnswer(ctx context.Context, answer models.Answer) (*models.Answer, error)
	ListAnswers(ctx context.Context, sessionID uuid.UUID, round *int) ([]models.Answer, error)
}

// Watcher delivers change notifications for one session until ctx is done.
// Delivery is at-least-once; consumers re-read the record.
type Watcher interface {
	Watch(ctx context.Context, sessionID uuid.UUID) (<-chan events.Change, error)
}

// Store bundles every capability a backend provides.
type Store interface {
	SessionStore
	AnswerStore
	Watcher
}

// IntPtr is a small helper for building preconditions.
func IntPtr(v int) *int { return &v }

// StatusPtr is a small helper for building preconditions.
func StatusPtr(s models.SessionStatus) *models.SessionStatus { return &s }

// Backend is a store without its own change notifications.
type Backend interface {
	SessionStore
	AnswerStore
}

type watchedStore struct {
	Backend
	Watcher
}

// WithWatcher pairs a backend that cannot notify (Postgres) with a separate
// change feed such as the NATS relay of its outbox.
func WithWatcher(backend Backend, watcher Watcher) Store {
	return watchedStore{Backend: backend, Watcher: watcher}
}
