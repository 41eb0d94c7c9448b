package answers

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/scoring"
	"github.com/mcdev12/quizduel/go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *store.MemoryStore
	app     *App
	session *models.Session
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	s := store.NewMemoryStore(clock)
	sess, err := s.CreateSession(context.Background(), store.CreateSessionRequest{
		HostID:            "A",
		Players:           []string{"A", "B"},
		Status:            models.SessionStatusActive,
		SelectedQuestions: []uuid.UUID{uuid.New(), uuid.New()},
		Question:          models.QuestionContext{QuestionID: uuid.New(), Options: []string{"X", "Y"}, CorrectAnswer: "X"},
		TimeLeft:          30,
		Scores:            models.Scores{"A": 0, "B": 0},
	})
	require.NoError(t, err)

	acc := scoring.NewAccumulator(s, scoring.DefaultPolicy())
	return fixture{store: s, app: NewApp(s, acc, clock, 30), session: sess}
}

func Test_Submit_Records_Answer_And_Awards_Points(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()

	// Act
	a, err := f.app.Submit(ctx, SubmitAnswerRequest{SessionID: f.session.ID, PlayerID: "A", RoundNumber: 0, AnswerText: "X", TimeLeft: 20})
	require.NoError(t, err)
	b, err := f.app.Submit(ctx, SubmitAnswerRequest{SessionID: f.session.ID, PlayerID: "B", RoundNumber: 0, AnswerText: "Y", TimeLeft: 5})
	require.NoError(t, err)

	// Assert
	assert.True(t, a.IsCorrect)
	assert.False(t, b.IsCorrect)
	got, err := f.store.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 14, got.Scores["A"])
	assert.Equal(t, 0, got.Scores["B"])
}

func Test_Submit_Twice_Stores_One_Answer_And_One_Award(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := SubmitAnswerRequest{SessionID: f.session.ID, PlayerID: "A", RoundNumber: 0, AnswerText: "X", TimeLeft: 30}

	_, err := f.app.Submit(ctx, req)
	require.NoError(t, err)
	_, err = f.app.Submit(ctx, req)
	require.ErrorIs(t, err, ErrDuplicateAnswer)

	answers, err := f.app.ListRoundAnswers(ctx, f.session.ID, 0)
	require.NoError(t, err)
	assert.Len(t, answers, 1)
	got, err := f.store.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 16, got.Scores["A"])
}

// flakyStore fails the first CreateAnswer calls the way an unreachable backend would.
type flakyStore struct {
	*store.MemoryStore
	failures int
}

func (s *flakyStore) CreateAnswer(ctx context.Context, answer models.Answer) (*models.Answer, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("store unavailable")
	}
	return s.MemoryStore.CreateAnswer(ctx, answer)
}

func Test_Submit_Retry_After_Store_Failure_Awards_Once(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	flaky := &flakyStore{MemoryStore: f.store, failures: 1}
	app := NewApp(flaky, scoring.NewAccumulator(f.store, scoring.DefaultPolicy()), clockwork.NewFakeClock(), 30)
	req := SubmitAnswerRequest{SessionID: f.session.ID, PlayerID: "A", RoundNumber: 0, AnswerText: "X", TimeLeft: 20}

	// Act
	_, firstErr := app.Submit(ctx, req)
	answer, err := app.Submit(ctx, req)

	// Assert
	require.Error(t, firstErr)
	require.NoError(t, err)
	assert.Equal(t, 14, answer.Points)

	_, err = app.Submit(ctx, req)
	require.ErrorIs(t, err, ErrDuplicateAnswer)

	got, err := f.store.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 14, got.Scores["A"])
}

func Test_Submit_For_Stale_Round_Is_Round_Closed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	next := 1
	_, err := f.store.UpdateSession(ctx, f.session.ID, store.Precondition{CurrentRound: store.IntPtr(0)}, store.SessionChanges{CurrentRound: &next})
	require.NoError(t, err)

	_, err = f.app.Submit(ctx, SubmitAnswerRequest{SessionID: f.session.ID, PlayerID: "A", RoundNumber: 0, AnswerText: "X"})

	require.ErrorIs(t, err, ErrRoundClosed)
}

func Test_Submit_Rejects_Unknown_Player_And_Empty_Answer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.app.Submit(ctx, SubmitAnswerRequest{SessionID: f.session.ID, PlayerID: "C", AnswerText: "X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	_, err = f.app.Submit(ctx, SubmitAnswerRequest{SessionID: f.session.ID, PlayerID: "A"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "answer is required")
}

func Test_Submit_Missing_Session_Is_Not_Found(t *testing.T) {
	f := newFixture(t)

	_, err := f.app.Submit(context.Background(), SubmitAnswerRequest{SessionID: uuid.New(), PlayerID: "A", AnswerText: "X"})

	require.ErrorIs(t, err, ErrNotFound)
}

func TestAllAnswered(t *testing.T) {
	sess := &models.Session{Players: []string{"A", "B"}}
	a0 := models.Answer{PlayerID: "A", RoundNumber: 0}
	b0 := models.Answer{PlayerID: "B", RoundNumber: 0}
	b1 := models.Answer{PlayerID: "B", RoundNumber: 1}

	assert.False(t, AllAnswered(sess, nil, 0))
	assert.False(t, AllAnswered(sess, []models.Answer{a0}, 0))
	assert.False(t, AllAnswered(sess, []models.Answer{a0, b1}, 0))
	assert.True(t, AllAnswered(sess, []models.Answer{a0, b0}, 0))
	assert.True(t, AllAnswered(sess, []models.Answer{a0, b0, b1}, 0))
	assert.False(t, AllAnswered(&models.Session{}, []models.Answer{a0}, 0))

	assert.True(t, HasAnswered([]models.Answer{a0, b1}, "B", 1))
	assert.False(t, HasAnswered([]models.Answer{a0, b1}, "B", 0))
}
