package matchmaker

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/questions"
	"github.com/mcdev12/quizduel/go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBank(n int) *questions.App {
	qs := make([]models.Question, n)
	for i := range qs {
		qs[i] = models.Question{
			ID:            uuid.New(),
			Text:          "q",
			Options:       []string{"X", "Y"},
			CorrectAnswer: "X",
			Category:      models.QuestionCategoryLogic,
			Difficulty:    models.QuestionDifficultyEasy,
		}
	}
	return questions.NewApp(questions.NewMemoryRepository(qs), nil)
}

func newTestApp(t *testing.T, bankSize int) (*App, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(clockwork.NewFakeClock())
	app, err := NewApp(st, newBank(bankSize), DefaultConfig())
	require.NoError(t, err)
	return app, st
}

func Test_FindOrCreateSession_Creates_Open_Session(t *testing.T) {
	// Arrange
	app, _ := newTestApp(t, 10)

	// Act
	session, err := app.FindOrCreateSession(context.Background(), "A")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusOpen, session.Status)
	assert.Equal(t, []string{"A"}, session.Players)
	assert.Equal(t, "A", session.HostID)
	assert.Equal(t, 0, session.CurrentRound)
	assert.Equal(t, 30, session.TimeLeft)
	assert.Equal(t, models.Scores{"A": 0}, session.Scores)
	require.Len(t, session.SelectedQuestions, 5)
	assert.Equal(t, session.SelectedQuestions[0], session.Question.QuestionID)
}

func Test_FindOrCreateSession_Second_Player_Activates_Session(t *testing.T) {
	// Arrange
	app, _ := newTestApp(t, 10)
	first, err := app.FindOrCreateSession(context.Background(), "A")
	require.NoError(t, err)

	// Act
	second, err := app.FindOrCreateSession(context.Background(), "B")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"A", "B"}, second.Players)
	assert.Equal(t, models.SessionStatusActive, second.Status)
	assert.Equal(t, models.Scores{"A": 0, "B": 0}, second.Scores)
	assert.Equal(t, first.SelectedQuestions, second.SelectedQuestions)
}

func Test_FindOrCreateSession_Third_Player_Gets_New_Session(t *testing.T) {
	app, _ := newTestApp(t, 10)
	ctx := context.Background()
	first, err := app.FindOrCreateSession(ctx, "A")
	require.NoError(t, err)
	_, err = app.FindOrCreateSession(ctx, "B")
	require.NoError(t, err)

	third, err := app.FindOrCreateSession(ctx, "C")

	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, models.SessionStatusOpen, third.Status)
}

func Test_FindOrCreateSession_Rejoin_Returns_Existing_Session(t *testing.T) {
	app, st := newTestApp(t, 10)
	ctx := context.Background()
	first, err := app.FindOrCreateSession(ctx, "A")
	require.NoError(t, err)

	again, err := app.FindOrCreateSession(ctx, "A")

	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, []string{"A"}, again.Players)
	all, err := st.ListSessions(ctx, store.SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func Test_FindOrCreateSession_Insufficient_Questions(t *testing.T) {
	app, st := newTestApp(t, 3)

	_, err := app.FindOrCreateSession(context.Background(), "A")

	require.ErrorIs(t, err, ErrInsufficientQuestions)
	all, err := st.ListSessions(context.Background(), store.SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func Test_FindOrCreateSession_Requires_Player(t *testing.T) {
	app, _ := newTestApp(t, 10)

	_, err := app.FindOrCreateSession(context.Background(), "")

	assert.Error(t, err)
}

func Test_FindOrCreateSession_Concurrent_Joiners_Never_Overfill(t *testing.T) {
	// Arrange
	app, st := newTestApp(t, 10)
	ctx := context.Background()
	host, err := app.FindOrCreateSession(ctx, "host")
	require.NoError(t, err)

	// Act
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := app.FindOrCreateSession(ctx, string(rune('a'+i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Assert
	got, err := st.GetSession(ctx, host.ID)
	require.NoError(t, err)
	assert.Len(t, got.Players, 2)
	all, err := st.ListSessions(ctx, store.SessionFilter{})
	require.NoError(t, err)
	for _, s := range all {
		assert.LessOrEqual(t, len(s.Players), 2)
	}
}

func Test_CheckMatchStatus(t *testing.T) {
	app, _ := newTestApp(t, 10)
	ctx := context.Background()
	session, err := app.FindOrCreateSession(ctx, "A")
	require.NoError(t, err)

	status, err := app.CheckMatchStatus(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, status.Ready)

	_, err = app.FindOrCreateSession(ctx, "B")
	require.NoError(t, err)

	status, err = app.CheckMatchStatus(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, models.SessionStatusActive, status.Status)

	_, err = app.CheckMatchStatus(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func Test_Cancel_Sole_Player_Deletes_Session(t *testing.T) {
	app, st := newTestApp(t, 10)
	ctx := context.Background()
	session, err := app.FindOrCreateSession(ctx, "A")
	require.NoError(t, err)

	require.NoError(t, app.Cancel(ctx, session.ID, "A"))

	_, err = st.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func Test_Cancel_Leaves_Session_For_Remaining_Player(t *testing.T) {
	app, st := newTestApp(t, 10)
	ctx := context.Background()
	session, err := app.FindOrCreateSession(ctx, "A")
	require.NoError(t, err)
	_, err = app.FindOrCreateSession(ctx, "B")
	require.NoError(t, err)

	require.NoError(t, app.Cancel(ctx, session.ID, "A"))

	got, err := st.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, got.Players)
}

func Test_Cancel_Missing_Session_Is_NoOp(t *testing.T) {
	app, _ := newTestApp(t, 10)

	assert.NoError(t, app.Cancel(context.Background(), uuid.New(), "A"))
}

func Test_NewApp_Rejects_Bad_Config(t *testing.T) {
	st := store.NewMemoryStore(nil)
	bad := DefaultConfig()
	bad.RoundCount = 0

	_, err := NewApp(st, newBank(1), bad)

	assert.Error(t, err)
}
