package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizduel/go/internal/events"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/sqlutil"
	"github.com/mcdev12/quizduel/go/internal/store"
)

// Repository is the Postgres session and answer store. Every mutation writes
// its change event to session_outbox in the same transaction; the outbox relay
// forwards those to NATS, where changefeed.Watcher picks them up.
type Repository struct {
	pool    *pgxpool.Pool
	queries *Queries
	clock   clockwork.Clock
}

// NewRepository creates a new Postgres repository
func NewRepository(pool *pgxpool.Pool, clock clockwork.Clock) *Repository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Repository{
		pool:    pool,
		queries: New(pool),
		clock:   clock,
	}
}

func (r *Repository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	return sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) *Queries { return r.queries.WithTx(tx) }, fn)
}

func writeChange(ctx context.Context, q *Queries, change events.Change) error {
	payload, err := change.Payload()
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", change.Type, err)
	}
	if err := q.InsertOutbox(ctx, InsertOutboxParams{
		ID:        change.ID,
		SessionID: change.SessionID,
		EventType: change.Type,
		Payload:   payload,
		CreatedAt: change.At,
	}); err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", change.Type, err)
	}
	return nil
}

// GetSession retrieves a session by ID
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := r.queries.GetSession(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessions lists sessions matching filter, oldest first
func (r *Repository) ListSessions(ctx context.Context, filter store.SessionFilter) ([]models.Session, error) {
	var arg ListSessionsParams
	if filter.Status != nil {
		status := string(*filter.Status)
		arg.Status = &status
	}
	if filter.HostID != "" {
		arg.HostID = &filter.HostID
	}
	if filter.PlayersBelow > 0 {
		arg.PlayersBelow = &filter.PlayersBelow
	}
	if filter.Limit > 0 {
		arg.Limit = &filter.Limit
	}

	sessions, err := r.queries.ListSessions(ctx, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// CreateSession inserts a new session
func (r *Repository) CreateSession(ctx context.Context, req store.CreateSessionRequest) (*models.Session, error) {
	players, err := json.Marshal(nonNilStrings(req.Players))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal players: %w", err)
	}
	selected, err := json.Marshal(req.SelectedQuestions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal selected questions: %w", err)
	}
	question, err := json.Marshal(req.Question)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal question: %w", err)
	}
	scores, err := json.Marshal(req.Scores.Clone())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scores: %w", err)
	}

	now := r.clock.Now()
	var created *models.Session
	err = r.inTx(ctx, func(q *Queries) error {
		s, err := q.InsertSession(ctx, InsertSessionParams{
			ID:                uuid.New(),
			HostID:            req.HostID,
			Players:           players,
			Status:            string(req.Status),
			SelectedQuestions: selected,
			Question:          question,
			TimeLeft:          req.TimeLeft,
			Scores:            scores,
			Now:               now,
		})
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		created = s
		return writeChange(ctx, q, events.NewSessionChange(events.EventTypeSessionCreated, s, now))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return created, nil
}

// UpdateSession is a compare-and-swap: the row is only written when pre holds.
func (r *Repository) UpdateSession(ctx context.Context, id uuid.UUID, pre store.Precondition, changes store.SessionChanges) (*models.Session, error) {
	arg := ConditionalUpdateParams{
		ID:                id,
		ExpectRound:       pre.CurrentRound,
		ExpectPlayerCount: pre.PlayerCount,
		SetRound:          changes.CurrentRound,
		SetTimeLeft:       changes.TimeLeft,
		Now:               changes.LastActionTime,
		OpensRound:        changes.OpensRound(),
	}
	if arg.Now.IsZero() {
		arg.Now = r.clock.Now()
	}
	if pre.Status != nil {
		status := string(*pre.Status)
		arg.ExpectStatus = &status
	}
	if changes.Status != nil {
		status := string(*changes.Status)
		arg.SetStatus = &status
	}

	var err error
	if changes.Players != nil {
		if arg.SetPlayers, err = json.Marshal(changes.Players); err != nil {
			return nil, fmt.Errorf("failed to marshal players: %w", err)
		}
	}
	if changes.Question != nil {
		if arg.SetQuestion, err = json.Marshal(changes.Question); err != nil {
			return nil, fmt.Errorf("failed to marshal question: %w", err)
		}
	}
	if changes.Scores != nil {
		if arg.SetScores, err = json.Marshal(changes.Scores); err != nil {
			return nil, fmt.Errorf("failed to marshal scores: %w", err)
		}
	}

	var updated *models.Session
	err = r.inTx(ctx, func(q *Queries) error {
		s, err := q.ConditionalUpdate(ctx, arg)
		if errors.Is(err, pgx.ErrNoRows) {
			exists, existsErr := q.SessionExists(ctx, id)
			if existsErr != nil {
				return fmt.Errorf("failed to check session: %w", existsErr)
			}
			if !exists {
				return store.ErrNotFound
			}
			return store.ErrPreconditionFailed
		}
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		updated = s
		return writeChange(ctx, q, events.NewSessionChange(changes.EventType(), s, arg.Now))
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrPreconditionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return updated, nil
}

// AddScore adds points to one player's entry with a single jsonb_set.
func (r *Repository) AddScore(ctx context.Context, id uuid.UUID, playerID string, points int) (*models.Session, error) {
	now := r.clock.Now()
	var updated *models.Session
	err := r.inTx(ctx, func(q *Queries) error {
		s, err := q.AddScore(ctx, id, playerID, points, now)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to add score: %w", err)
		}
		updated = s
		return writeChange(ctx, q, events.NewSessionChange(events.EventTypeScoresUpdated, s, now))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSession removes a session and, by cascade, its answers
func (r *Repository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	now := r.clock.Now()
	return r.inTx(ctx, func(q *Queries) error {
		deleted, err := q.DeleteSession(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		if !deleted {
			return nil
		}
		return writeChange(ctx, q, events.NewDeletedChange(id, now))
	})
}

// CreateAnswer inserts an answer and credits its points while holding a lock on
// the session row, so the round cannot advance between the round check and the insert.
func (r *Repository) CreateAnswer(ctx context.Context, answer models.Answer) (*models.Answer, error) {
	if answer.ID == uuid.Nil {
		answer.ID = uuid.New()
	}
	if answer.SubmittedAt.IsZero() {
		answer.SubmittedAt = r.clock.Now()
	}

	var created *models.Answer
	err := r.inTx(ctx, func(q *Queries) error {
		status, round, err := q.LockSessionRound(ctx, answer.SessionID)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock session: %w", err)
		}

		exists, err := q.AnswerExists(ctx, answer.SessionID, answer.PlayerID, answer.RoundNumber)
		if err != nil {
			return fmt.Errorf("failed to check answer: %w", err)
		}
		if exists {
			return store.ErrDuplicateAnswer
		}
		if models.SessionStatus(status) != models.SessionStatusActive || round != answer.RoundNumber {
			return store.ErrRoundClosed
		}

		a, err := q.InsertAnswer(ctx, answer)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrDuplicateAnswer
		}
		if err != nil {
			return fmt.Errorf("failed to insert answer: %w", err)
		}
		created = a
		if a.Points > 0 {
			if _, err := q.AddScore(ctx, a.SessionID, a.PlayerID, a.Points, a.SubmittedAt); err != nil {
				return fmt.Errorf("failed to credit answer points: %w", err)
			}
		}
		return writeChange(ctx, q, events.NewAnswerChange(*a, a.SubmittedAt))
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListAnswers lists a session's answers, optionally for one round
func (r *Repository) ListAnswers(ctx context.Context, sessionID uuid.UUID, round *int) ([]models.Answer, error) {
	answers, err := r.queries.ListAnswers(ctx, sessionID, round)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	return answers, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
