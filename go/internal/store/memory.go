package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizduel/go/internal/events"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/rs/zerolog/log"
)

const memoryWatchBuffer = 64

type answerKey struct {
	sessionID uuid.UUID
	playerID  string
	round     int
}

// MemoryStore is an in-process Store. It backs single-node deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*models.Session
	answers  map[answerKey]models.Answer
	clock    clockwork.Clock

	watchersMu sync.Mutex
	watchers   map[uuid.UUID]map[chan events.Change]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		sessions: make(map[uuid.UUID]*models.Session),
		answers:  make(map[answerKey]models.Answer),
		clock:    clock,
		watchers: make(map[uuid.UUID]map[chan events.Change]struct{}),
	}
}

func (m *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, filter SessionFilter) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Session
	for _, s := range m.sessions {
		if filter.Matches(s) {
			result = append(result, *s.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MemoryStore) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	now := m.clock.Now()
	s := &models.Session{
		ID:                uuid.New(),
		HostID:            req.HostID,
		Players:           append([]string(nil), req.Players...),
		Status:            req.Status,
		SelectedQuestions: append([]uuid.UUID(nil), req.SelectedQuestions...),
		Question:          req.Question,
		TimeLeft:          req.TimeLeft,
		Scores:            req.Scores.Clone(),
		LastActionTime:    now,
		RoundStartedAt:    now,
		CreatedAt:         now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	out := s.Clone()
	m.mu.Unlock()

	m.notify(events.NewSessionChange(events.EventTypeSessionCreated, out, now))
	return out, nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, id uuid.UUID, pre Precondition, changes SessionChanges) (*models.Session, error) {
	now := m.clock.Now()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if !pre.Holds(s) {
		m.mu.Unlock()
		return nil, ErrPreconditionFailed
	}
	if changes.Status != nil && !s.Status.CanTransitionTo(*changes.Status) {
		m.mu.Unlock()
		return nil, fmt.Errorf("invalid status transition %s -> %s: %w", s.Status, *changes.Status, ErrPreconditionFailed)
	}
	changes.Apply(s, now)
	out := s.Clone()
	m.mu.Unlock()

	m.notify(events.NewSessionChange(changes.EventType(), out, now))
	return out, nil
}

func (m *MemoryStore) AddScore(ctx context.Context, id uuid.UUID, playerID string, points int) (*models.Session, error) {
	now := m.clock.Now()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if s.Scores == nil {
		s.Scores = models.Scores{}
	}
	s.Scores.Ensure(playerID)
	s.Scores.Add(playerID, points)
	s.LastActionTime = now
	out := s.Clone()
	m.mu.Unlock()

	m.notify(events.NewSessionChange(events.EventTypeScoresUpdated, out, now))
	return out, nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	if _, ok := m.sessions[id]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.sessions, id)
	for k := range m.answers {
		if k.sessionID == id {
			delete(m.answers, k)
		}
	}
	m.mu.Unlock()

	m.notify(events.NewDeletedChange(id, m.clock.Now()))
	return nil
}

func (m *MemoryStore) CreateAnswer(ctx context.Context, answer models.Answer) (*models.Answer, error) {
	key := answerKey{sessionID: answer.SessionID, playerID: answer.PlayerID, round: answer.RoundNumber}

	m.mu.Lock()
	if _, exists := m.answers[key]; exists {
		m.mu.Unlock()
		return nil, ErrDuplicateAnswer
	}
	s, ok := m.sessions[answer.SessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if s.Status != models.SessionStatusActive || s.CurrentRound != answer.RoundNumber {
		m.mu.Unlock()
		return nil, ErrRoundClosed
	}
	if answer.ID == uuid.Nil {
		answer.ID = uuid.New()
	}
	if answer.SubmittedAt.IsZero() {
		answer.SubmittedAt = m.clock.Now()
	}
	m.answers[key] = answer
	if answer.Points > 0 {
		if s.Scores == nil {
			s.Scores = models.Scores{}
		}
		s.Scores.Ensure(answer.PlayerID)
		s.Scores.Add(answer.PlayerID, answer.Points)
		s.LastActionTime = answer.SubmittedAt
	}
	m.mu.Unlock()

	m.notify(events.NewAnswerChange(answer, answer.SubmittedAt))
	return &answer, nil
}

func (m *MemoryStore) ListAnswers(ctx context.Context, sessionID uuid.UUID, round *int) ([]models.Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Answer
	for k, a := range m.answers {
		if k.sessionID != sessionID {
			continue
		}
		if round != nil && k.round != *round {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SubmittedAt.Before(result[j].SubmittedAt)
	})
	return result, nil
}

// Watch registers a buffered channel for sessionID. The channel is closed when ctx ends.
func (m *MemoryStore) Watch(ctx context.Context, sessionID uuid.UUID) (<-chan events.Change, error) {
	ch := make(chan events.Change, memoryWatchBuffer)

	m.watchersMu.Lock()
	if m.watchers[sessionID] == nil {
		m.watchers[sessionID] = make(map[chan events.Change]struct{})
	}
	m.watchers[sessionID][ch] = struct{}{}
	m.watchersMu.Unlock()

	go func() {
		<-ctx.Done()
		m.watchersMu.Lock()
		delete(m.watchers[sessionID], ch)
		if len(m.watchers[sessionID]) == 0 {
			delete(m.watchers, sessionID)
		}
		close(ch)
		m.watchersMu.Unlock()
	}()

	return ch, nil
}

// notify fans a change out to watchers without blocking the writer.
func (m *MemoryStore) notify(change events.Change) {
	m.watchersMu.Lock()
	defer m.watchersMu.Unlock()

	for ch := range m.watchers[change.SessionID] {
		select {
		case ch <- change:
		default:
			log.Warn().
				Str("session_id", change.SessionID.String()).
				Str("event_type", change.Type).
				Msg("watcher buffer full, dropping change")
		}
	}
}
