package sessions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
	"github.com/rs/zerolog/log"
)

var ErrNotFound = store.ErrNotFound

// Repository defines what session administration needs from the store
type Repository interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListSessions(ctx context.Context, filter store.SessionFilter) ([]models.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	ListAnswers(ctx context.Context, sessionID uuid.UUID, round *int) ([]models.Answer, error)
}

// ListSessionsRequest narrows a listing. Empty fields are ignored.
type ListSessionsRequest struct {
	Status *models.SessionStatus
	HostID string
	Limit  int
}

// App handles session administration
type App struct {
	repo Repository
}

func NewApp(repo Repository) *App {
	return &App{repo: repo}
}

func (a *App) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (a *App) ListSessions(ctx context.Context, req ListSessionsRequest) ([]models.Session, error) {
	if req.Status != nil && !req.Status.Valid() {
		return nil, fmt.Errorf("validation failed: unknown status %q", *req.Status)
	}
	if req.Limit < 0 {
		return nil, fmt.Errorf("validation failed: limit must not be negative")
	}
	sessions, err := a.repo.ListSessions(ctx, store.SessionFilter{
		Status: req.Status,
		HostID: req.HostID,
		Limit:  req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// ListActive returns the matches currently being played.
func (a *App) ListActive(ctx context.Context) ([]models.Session, error) {
	status := models.SessionStatusActive
	return a.ListSessions(ctx, ListSessionsRequest{Status: &status})
}

// DeleteSession removes a session and its answers. Deleting a missing session is not an error.
func (a *App) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := a.repo.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	log.Info().Str("session_id", id.String()).Msg("session deleted")
	return nil
}

// ListAnswers returns a session's answers, optionally for a single round.
func (a *App) ListAnswers(ctx context.Context, id uuid.UUID, round *int) ([]models.Answer, error) {
	if _, err := a.repo.GetSession(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	answers, err := a.repo.ListAnswers(ctx, id, round)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	return answers, nil
}
