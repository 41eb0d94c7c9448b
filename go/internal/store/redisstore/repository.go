package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizduel/go/internal/events"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const defaultMaxRetries = 16

// Repository keeps sessions and answers in Redis. Conditional writes use
// WATCH/MULTI on the session key; change events go out over Pub/Sub.
type Repository struct {
	client     *redis.Client
	clock      clockwork.Clock
	maxRetries int
}

// NewRepository creates a new Redis repository
func NewRepository(client *redis.Client, clock clockwork.Clock) *Repository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Repository{
		client:     client,
		clock:      clock,
		maxRetries: defaultMaxRetries,
	}
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadSession(ctx context.Context, c getter, id uuid.UUID) (*models.Session, error) {
	raw, err := c.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.Scores == nil {
		s.Scores = models.Scores{}
	}
	return &s, nil
}

func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return loadSession(ctx, r.client, id)
}

func (r *Repository) ListSessions(ctx context.Context, filter store.SessionFilter) ([]models.Session, error) {
	statuses := allStatuses
	if filter.Status != nil {
		statuses = []models.SessionStatus{*filter.Status}
	}

	var ids []string
	for _, status := range statuses {
		members, err := r.client.ZRange(ctx, statusIndexKey(status), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s index: %w", status, err)
		}
		ids = append(ids, members...)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprintf("%s:session:%s", keyPrefix, id)
	}
	raws, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	var out []models.Session
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			// Index entry outlived its session.
			continue
		}
		var s models.Session
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		if filter.Matches(&s) {
			out = append(out, s)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *Repository) CreateSession(ctx context.Context, req store.CreateSessionRequest) (*models.Session, error) {
	now := r.clock.Now()
	s := &models.Session{
		ID:                uuid.New(),
		HostID:            req.HostID,
		Players:           append([]string{}, req.Players...),
		Status:            req.Status,
		SelectedQuestions: append([]uuid.UUID(nil), req.SelectedQuestions...),
		Question:          req.Question,
		TimeLeft:          req.TimeLeft,
		Scores:            req.Scores.Clone(),
		LastActionTime:    now,
		RoundStartedAt:    now,
		CreatedAt:         now,
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(s.ID), raw, 0)
		pipe.ZAdd(ctx, statusIndexKey(s.Status), redis.Z{Score: float64(now.UnixNano()), Member: s.ID.String()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	r.publish(ctx, events.NewSessionChange(events.EventTypeSessionCreated, s, now))
	return s, nil
}

// mutate runs fn against the current session under WATCH and writes the result
// in MULTI/EXEC, retrying when another writer touched the key first.
func (r *Repository) mutate(ctx context.Context, id uuid.UUID, fn func(s *models.Session) error) (*models.Session, models.SessionStatus, error) {
	var (
		updated   *models.Session
		oldStatus models.SessionStatus
	)
	txf := func(tx *redis.Tx) error {
		s, err := loadSession(ctx, tx, id)
		if err != nil {
			return err
		}
		oldStatus = s.Status
		if err := fn(s); err != nil {
			return err
		}
		raw, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey(id), raw, 0)
			if s.Status != oldStatus {
				pipe.ZRem(ctx, statusIndexKey(oldStatus), id.String())
				pipe.ZAdd(ctx, statusIndexKey(s.Status), redis.Z{Score: float64(s.CreatedAt.UnixNano()), Member: id.String()})
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = s
		return nil
	}

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, sessionKey(id))
		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().
				Str("session_id", id.String()).
				Int("attempt", attempt+1).
				Msg("session changed during transaction, retrying")
			continue
		}
		return updated, oldStatus, err
	}
	return nil, "", fmt.Errorf("session %s: gave up after %d contended attempts", id, r.maxRetries)
}

func (r *Repository) UpdateSession(ctx context.Context, id uuid.UUID, pre store.Precondition, changes store.SessionChanges) (*models.Session, error) {
	now := r.clock.Now()
	updated, _, err := r.mutate(ctx, id, func(s *models.Session) error {
		if !pre.Holds(s) {
			return store.ErrPreconditionFailed
		}
		if changes.Status != nil && !s.Status.CanTransitionTo(*changes.Status) {
			return fmt.Errorf("invalid status transition %s -> %s: %w", s.Status, *changes.Status, store.ErrPreconditionFailed)
		}
		changes.Apply(s, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.publish(ctx, events.NewSessionChange(changes.EventType(), updated, now))
	return updated, nil
}

func (r *Repository) AddScore(ctx context.Context, id uuid.UUID, playerID string, points int) (*models.Session, error) {
	now := r.clock.Now()
	updated, _, err := r.mutate(ctx, id, func(s *models.Session) error {
		s.Scores.Ensure(playerID)
		s.Scores.Add(playerID, points)
		s.LastActionTime = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.publish(ctx, events.NewSessionChange(events.EventTypeScoresUpdated, updated, now))
	return updated, nil
}

func (r *Repository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	var deleted *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, sessionKey(id))
		pipe.Del(ctx, answersKey(id))
		for _, status := range allStatuses {
			pipe.ZRem(ctx, statusIndexKey(status), id.String())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if deleted.Val() > 0 {
		r.publish(ctx, events.NewDeletedChange(id, r.clock.Now()))
	}
	return nil
}

// CreateAnswer watches both the session and its answers, so an advance that
// lands between the round check and the write aborts the transaction. The
// award is written to the session in the same MULTI.
func (r *Repository) CreateAnswer(ctx context.Context, answer models.Answer) (*models.Answer, error) {
	if answer.ID == uuid.Nil {
		answer.ID = uuid.New()
	}
	if answer.SubmittedAt.IsZero() {
		answer.SubmittedAt = r.clock.Now()
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answer: %w", err)
	}

	field := answerField(answer.PlayerID, answer.RoundNumber)
	txf := func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, answersKey(answer.SessionID), field).Result()
		if err != nil {
			return fmt.Errorf("failed to check answer: %w", err)
		}
		if exists {
			return store.ErrDuplicateAnswer
		}
		s, err := loadSession(ctx, tx, answer.SessionID)
		if err != nil {
			return err
		}
		if s.Status != models.SessionStatusActive || s.CurrentRound != answer.RoundNumber {
			return store.ErrRoundClosed
		}
		var session []byte
		if answer.Points > 0 {
			s.Scores.Ensure(answer.PlayerID)
			s.Scores.Add(answer.PlayerID, answer.Points)
			s.LastActionTime = answer.SubmittedAt
			if session, err = json.Marshal(s); err != nil {
				return fmt.Errorf("failed to encode session: %w", err)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, answersKey(answer.SessionID), field, raw)
			if session != nil {
				pipe.Set(ctx, sessionKey(answer.SessionID), session, 0)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, sessionKey(answer.SessionID), answersKey(answer.SessionID))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		r.publish(ctx, events.NewAnswerChange(answer, answer.SubmittedAt))
		return &answer, nil
	}
	return nil, fmt.Errorf("answer for session %s: gave up after %d contended attempts", answer.SessionID, r.maxRetries)
}

func (r *Repository) ListAnswers(ctx context.Context, sessionID uuid.UUID, round *int) ([]models.Answer, error) {
	all, err := r.client.HGetAll(ctx, answersKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}

	var out []models.Answer
	for field, raw := range all {
		if round != nil && !strings.HasPrefix(field, fmt.Sprintf("%d:", *round)) {
			continue
		}
		var a models.Answer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("failed to decode answer: %w", err)
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].PlayerID < out[j].PlayerID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

// publish is best effort; watchers also resync on a timer.
func (r *Repository) publish(ctx context.Context, change events.Change) {
	env, err := change.Envelope()
	if err != nil {
		log.Error().Err(err).Str("event_type", change.Type).Msg("failed to build change envelope")
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event_type", change.Type).Msg("failed to encode change envelope")
		return
	}
	if err := r.client.Publish(ctx, changesChannel(change.SessionID), raw).Err(); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", change.SessionID.String()).
			Str("event_type", change.Type).
			Msg("failed to publish change")
	}
}

// Watch subscribes to the session's change channel until ctx is done.
func (r *Repository) Watch(ctx context.Context, sessionID uuid.UUID) (<-chan events.Change, error) {
	pubsub := r.client.Subscribe(ctx, changesChannel(sessionID))
	// Wait for the subscription to be confirmed so no change is missed after return.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan events.Change, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env events.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Error().Err(err).Str("channel", msg.Channel).Msg("failed to decode change envelope")
					continue
				}
				change, err := events.ChangeFromEnvelope(env)
				if err != nil {
					log.Error().Err(err).Str("channel", msg.Channel).Msg("failed to decode change")
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
