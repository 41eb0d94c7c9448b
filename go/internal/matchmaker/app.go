package matchmaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/questions"
	"github.com/mcdev12/quizduel/go/internal/store"
	"github.com/rs/zerolog/log"
)

// Repository defines what the matchmaker needs from the session store
type Repository interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListSessions(ctx context.Context, filter store.SessionFilter) ([]models.Session, error)
	CreateSession(ctx context.Context, req store.CreateSessionRequest) (*models.Session, error)
	UpdateSession(ctx context.Context, id uuid.UUID, pre store.Precondition, changes store.SessionChanges) (*models.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// QuestionDrawer picks the questions for a new session
type QuestionDrawer interface {
	Draw(ctx context.Context, n int, filter questions.Filter) ([]models.Question, error)
}

// App handles matchmaking
type App struct {
	repo      Repository
	questions QuestionDrawer
	cfg       Config
}

// NewApp creates a new matchmaker App
func NewApp(repo Repository, drawer QuestionDrawer, cfg Config) (*App, error) {
	if cfg.MaxPlayers < 1 {
		return nil, fmt.Errorf("max players must be at least 1")
	}
	if cfg.RoundCount < 1 {
		return nil, fmt.Errorf("round count must be at least 1")
	}
	if cfg.RoundDurationSec < 1 {
		return nil, fmt.Errorf("round duration must be at least 1 second")
	}
	return &App{
		repo:      repo,
		questions: drawer,
		cfg:       cfg,
	}, nil
}

// FindOrCreateSession seats playerID in an open session, or opens a new one.
// A player already seated in a live session gets that session back.
func (a *App) FindOrCreateSession(ctx context.Context, playerID string) (*models.Session, error) {
	if playerID == "" {
		return nil, fmt.Errorf("validation failed: player ID is required")
	}

	seated, err := a.findSeatedSession(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if seated != nil {
		log.Info().
			Str("session_id", seated.ID.String()).
			Str("player_id", playerID).
			Msg("player rejoined existing session")
		return seated, nil
	}

	open, err := a.repo.ListSessions(ctx, store.SessionFilter{
		Status:       store.StatusPtr(models.SessionStatusOpen),
		PlayersBelow: a.cfg.MaxPlayers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list open sessions: %w", err)
	}

	for i := range open {
		session, err := a.join(ctx, &open[i], playerID)
		switch {
		case err == nil:
			return session, nil
		case errors.Is(err, store.ErrPreconditionFailed), errors.Is(err, store.ErrNotFound):
			// Someone else took the seat or the session went away; try the next one.
			log.Debug().
				Str("session_id", open[i].ID.String()).
				Str("player_id", playerID).
				Err(err).
				Msg("lost join race")
			continue
		default:
			return nil, err
		}
	}

	return a.createSession(ctx, playerID)
}

func (a *App) join(ctx context.Context, candidate *models.Session, playerID string) (*models.Session, error) {
	players := append(append([]string(nil), candidate.Players...), playerID)
	scores := candidate.Scores.Clone()
	scores.Ensure(playerID)

	changes := store.SessionChanges{
		Players: players,
		Scores:  scores,
	}
	if len(players) >= a.cfg.MaxPlayers {
		changes.Status = store.StatusPtr(models.SessionStatusActive)
		changes.TimeLeft = store.IntPtr(a.cfg.RoundDurationSec)
	}

	session, err := a.repo.UpdateSession(ctx, candidate.ID, store.Precondition{
		Status:      store.StatusPtr(models.SessionStatusOpen),
		PlayerCount: store.IntPtr(len(candidate.Players)),
	}, changes)
	if err != nil {
		return nil, fmt.Errorf("failed to join session %s: %w", candidate.ID, err)
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("player_id", playerID).
		Int("players", len(session.Players)).
		Str("status", string(session.Status)).
		Msg("player joined session")
	return session, nil
}

func (a *App) createSession(ctx context.Context, playerID string) (*models.Session, error) {
	drawn, err := a.questions.Draw(ctx, a.cfg.RoundCount, a.cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to draw questions: %w", err)
	}

	ids := make([]uuid.UUID, len(drawn))
	for i, q := range drawn {
		ids[i] = q.ID
	}

	status := models.SessionStatusOpen
	if a.cfg.MaxPlayers == 1 {
		status = models.SessionStatusActive
	}

	session, err := a.repo.CreateSession(ctx, store.CreateSessionRequest{
		HostID:            playerID,
		Players:           []string{playerID},
		Status:            status,
		SelectedQuestions: ids,
		Question:          drawn[0].Context(),
		TimeLeft:          a.cfg.RoundDurationSec,
		Scores:            models.Scores{playerID: 0},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("host_id", playerID).
		Int("rounds", len(ids)).
		Msg("created session")
	return session, nil
}

func (a *App) findSeatedSession(ctx context.Context, playerID string) (*models.Session, error) {
	for _, status := range []models.SessionStatus{models.SessionStatusOpen, models.SessionStatusActive} {
		sessions, err := a.repo.ListSessions(ctx, store.SessionFilter{Status: store.StatusPtr(status)})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s sessions: %w", status, err)
		}
		for i := range sessions {
			if sessions[i].HasPlayer(playerID) {
				return &sessions[i], nil
			}
		}
	}
	return nil, nil
}

// CheckMatchStatus reports whether the session has filled up.
func (a *App) CheckMatchStatus(ctx context.Context, sessionID uuid.UUID) (*MatchStatus, error) {
	session, err := a.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &MatchStatus{
		SessionID: session.ID,
		Status:    session.Status,
		Players:   session.Players,
		Ready:     session.Status == models.SessionStatusActive,
	}, nil
}

// Cancel takes playerID out of the session. The last player out deletes it.
func (a *App) Cancel(ctx context.Context, sessionID uuid.UUID, playerID string) error {
	if playerID == "" {
		return fmt.Errorf("validation failed: player ID is required")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		session, err := a.repo.GetSession(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
		if !session.HasPlayer(playerID) {
			return nil
		}

		if len(session.Players) == 1 {
			if err := a.repo.DeleteSession(ctx, sessionID); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
			log.Info().
				Str("session_id", sessionID.String()).
				Str("player_id", playerID).
				Msg("deleted session on cancel")
			return nil
		}

		remaining := make([]string, 0, len(session.Players)-1)
		for _, p := range session.Players {
			if p != playerID {
				remaining = append(remaining, p)
			}
		}
		_, err = a.repo.UpdateSession(ctx, sessionID, store.Precondition{
			Status:      store.StatusPtr(session.Status),
			PlayerCount: store.IntPtr(len(session.Players)),
		}, store.SessionChanges{Players: remaining})
		switch {
		case err == nil:
			log.Info().
				Str("session_id", sessionID.String()).
				Str("player_id", playerID).
				Msg("player left session")
			return nil
		case errors.Is(err, store.ErrPreconditionFailed):
			// Seat list moved under us; re-read and try again.
			continue
		case errors.Is(err, store.ErrNotFound):
			return nil
		default:
			return fmt.Errorf("failed to leave session: %w", err)
		}
	}
}
