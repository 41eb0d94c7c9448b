package outbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizduel/go/internal/changefeed"
	"github.com/mcdev12/quizduel/go/internal/events"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID]*Event
	order  []uuid.UUID
}

func newFakeRepo(evs ...Event) *fakeRepo {
	r := &fakeRepo{events: map[uuid.UUID]*Event{}}
	for i := range evs {
		e := evs[i]
		r.events[e.ID] = &e
		r.order = append(r.order, e.ID)
	}
	return r
}

func (r *fakeRepo) FetchByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok || e.SentAt != nil {
		return nil, ErrAlreadySent
	}
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) FetchUnsent(ctx context.Context, limit int) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, id := range r.order {
		if e := r.events[id]; e.SentAt == nil && len(out) < limit {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[id].SentAt = &sentAt
	return nil
}

func (r *fakeRepo) CountPending(ctx context.Context) (int, error) {
	evs, _ := r.FetchUnsent(ctx, len(r.order)+1)
	return len(evs), nil
}

type fakePublisher struct {
	mu        sync.Mutex
	failures  int
	published []Event
}

func (p *fakePublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("nats unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func newEvent(t *testing.T) Event {
	t.Helper()
	session := &models.Session{ID: uuid.New(), Status: models.SessionStatusActive, CurrentRound: 2}
	change := events.NewSessionChange(events.EventTypeRoundAdvanced, session, time.Now())
	payload, err := change.Payload()
	require.NoError(t, err)
	return Event{ID: change.ID, SessionID: session.ID, EventType: change.Type, Payload: payload, CreatedAt: change.At}
}

func Test_HandleNotification_Publishes_And_Marks_Sent(t *testing.T) {
	// Arrange
	e := newEvent(t)
	repo := newFakeRepo(e)
	pub := &fakePublisher{}
	relay := NewRelay(repo, pub, clockwork.NewFakeClock(), DefaultRelayConfig())

	// Act
	err := relay.HandleNotification(context.Background(), e.ID.String())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, pub.count())
	pending, _ := repo.CountPending(context.Background())
	assert.Zero(t, pending)
	processed, _ := relay.Stats()
	assert.Equal(t, uint64(1), processed)
}

func Test_HandleNotification_Skips_Already_Sent(t *testing.T) {
	e := newEvent(t)
	repo := newFakeRepo(e)
	pub := &fakePublisher{}
	relay := NewRelay(repo, pub, clockwork.NewFakeClock(), DefaultRelayConfig())
	require.NoError(t, relay.HandleNotification(context.Background(), e.ID.String()))

	err := relay.HandleNotification(context.Background(), e.ID.String())

	require.NoError(t, err)
	assert.Equal(t, 1, pub.count())
}

func Test_HandleNotification_Rejects_Bad_Payload(t *testing.T) {
	relay := NewRelay(newFakeRepo(), &fakePublisher{}, clockwork.NewFakeClock(), DefaultRelayConfig())

	err := relay.HandleNotification(context.Background(), "not-a-uuid")

	assert.Error(t, err)
}

func Test_ProcessUnsent_Drains_Backlog(t *testing.T) {
	repo := newFakeRepo(newEvent(t), newEvent(t), newEvent(t))
	pub := &fakePublisher{}
	relay := NewRelay(repo, pub, clockwork.NewFakeClock(), DefaultRelayConfig())

	sent, err := relay.ProcessUnsent(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, 3, pub.count())
}

func Test_Publish_Retries_With_Backoff(t *testing.T) {
	// Arrange
	e := newEvent(t)
	repo := newFakeRepo(e)
	pub := &fakePublisher{failures: 2}
	clock := clockwork.NewFakeClock()
	relay := NewRelay(repo, pub, clock, RelayConfig{MaxRetries: 3, RetryDelay: 100 * time.Millisecond, BatchSize: 10})

	// Act
	done := make(chan error, 1)
	go func() { done <- relay.HandleNotification(context.Background(), e.ID.String()) }()
	clock.BlockUntil(1)
	clock.Advance(100 * time.Millisecond)
	clock.BlockUntil(1)
	clock.Advance(200 * time.Millisecond)

	// Assert
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not finish")
	}
	assert.Equal(t, 1, pub.count())
}

func Test_Publish_Gives_Up_After_Max_Retries(t *testing.T) {
	e := newEvent(t)
	repo := newFakeRepo(e)
	pub := &fakePublisher{failures: 10}
	relay := NewRelay(repo, pub, clockwork.NewFakeClock(), RelayConfig{MaxRetries: 0, BatchSize: 10})

	err := relay.HandleNotification(context.Background(), e.ID.String())

	assert.ErrorContains(t, err, "publish failed after 1 attempts")
	pending, _ := repo.CountPending(context.Background())
	assert.Equal(t, 1, pending)
}

func Test_Envelope_Decodes_As_Change(t *testing.T) {
	e := newEvent(t)

	data, err := jsonEnvelope(e)
	require.NoError(t, err)
	change, err := changefeed.Decode(data)

	require.NoError(t, err)
	assert.Equal(t, e.ID, change.ID)
	assert.Equal(t, events.EventTypeRoundAdvanced, change.Type)
	require.NotNil(t, change.Session)
	assert.Equal(t, 2, change.Session.CurrentRound)
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(ctx context.Context) error { return p.err }

type stubListener bool

func (l stubListener) Running() bool { return bool(l) }

func Test_HealthChecker_Reports_Status(t *testing.T) {
	repo := newFakeRepo(newEvent(t))
	relay := NewRelay(repo, &fakePublisher{}, clockwork.NewFakeClock(), DefaultRelayConfig())

	healthy := NewHealthChecker(relay, stubListener(true), stubPinger{}, repo, nil, clockwork.NewFakeClock(), time.Minute)
	status := healthy.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, 1, status.PendingEvents)

	down := NewHealthChecker(relay, stubListener(false), stubPinger{err: errors.New("refused")}, repo, nil, clockwork.NewFakeClock(), time.Minute)
	rec := httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "listener not active")
}
