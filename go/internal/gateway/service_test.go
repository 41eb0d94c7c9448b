package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizduel/go/internal/answers"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/questions"
	"github.com/mcdev12/quizduel/go/internal/round"
	"github.com/mcdev12/quizduel/go/internal/scoring"
	"github.com/mcdev12/quizduel/go/internal/sessions"
	"github.com/mcdev12/quizduel/go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testGateway struct {
	store   *store.MemoryStore
	host    *round.Host
	service *Service
	server  *httptest.Server
	bank    []models.Question
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	clock := clockwork.NewFakeClock()
	st := store.NewMemoryStore(clock)

	qs := make([]models.Question, 5)
	for i := range qs {
		qs[i] = models.Question{
			ID:            uuid.New(),
			Text:          "question",
			Options:       []string{"X", "Y"},
			CorrectAnswer: "X",
			Category:      models.QuestionCategoryEthics,
			Difficulty:    models.QuestionDifficultyMedium,
		}
	}
	bank := questions.NewApp(questions.NewMemoryRepository(qs), nil)
	ledger := answers.NewApp(st, scoring.NewAccumulator(st, scoring.DefaultPolicy()), clock, 30)
	host := round.NewHost(st, bank, ledger, clock, round.Config{
		RoundDuration:   30 * time.Second,
		TransitionPause: 3 * time.Second,
		TickInterval:    time.Second,
	})

	svc := NewService(Config{
		ConnectionConfig: DefaultConnectionConfig(),
		PublicURL:        "https://quizduel.test",
	}, sessions.NewApp(st), host)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)

	server := httptest.NewServer(svc.Routes())
	t.Cleanup(func() {
		server.Close()
		cancel()
		host.Shutdown()
	})

	return &testGateway{store: st, host: host, service: svc, server: server, bank: qs}
}

func (g *testGateway) createSession(t *testing.T, status models.SessionStatus, players ...string) *models.Session {
	t.Helper()
	ids := make([]uuid.UUID, len(g.bank))
	for i := range g.bank {
		ids[i] = g.bank[i].ID
	}
	scores := models.Scores{}
	for _, p := range players {
		scores.Ensure(p)
	}
	s, err := g.store.CreateSession(context.Background(), store.CreateSessionRequest{
		HostID:            players[0],
		Players:           players,
		Status:            status,
		SelectedQuestions: ids,
		Question:          g.bank[0].Context(),
		TimeLeft:          30,
		Scores:            scores,
	})
	require.NoError(t, err)
	return s
}

func (g *testGateway) dial(t *testing.T, sessionID uuid.UUID, playerID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws/session?session_id=" + sessionID.String() + "&player_id=" + playerID
	return websocket.DefaultDialer.Dial(url, nil)
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(ServerMessage) bool) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func Test_GetSessionState_Hides_Correct_Answer(t *testing.T) {
	// Arrange
	g := newTestGateway(t)
	s := g.createSession(t, models.SessionStatusActive, "A", "B")

	// Act
	resp, err := http.Get(g.server.URL + "/api/sessions/" + s.ID.String() + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	// Assert
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state SessionStateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, s.ID.String(), state.SessionID)
	assert.Equal(t, models.SessionStatusActive, state.Status)
	assert.Equal(t, []string{"A", "B"}, state.Players)
	assert.Equal(t, 5, state.RoundCount)
	assert.Equal(t, []string{"X", "Y"}, state.Question.Options)
	assert.Empty(t, state.Question.CorrectAnswer)
}

func Test_GetSessionState_Errors(t *testing.T) {
	g := newTestGateway(t)

	for _, tc := range []struct {
		path string
		want int
	}{
		{path: "/api/sessions/not-a-uuid/state", want: http.StatusBadRequest},
		{path: "/api/sessions/" + uuid.NewString() + "/state", want: http.StatusNotFound},
	} {
		resp, err := http.Get(g.server.URL + tc.path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tc.want, resp.StatusCode, tc.path)
	}
}

func Test_GetActiveSessions_Lists_Only_Active(t *testing.T) {
	g := newTestGateway(t)
	active := g.createSession(t, models.SessionStatusActive, "A", "B")
	g.createSession(t, models.SessionStatusOpen, "C")

	resp, err := http.Get(g.server.URL + "/api/sessions/active")
	require.NoError(t, err)
	defer resp.Body.Close()

	var summaries []SessionSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, active.ID.String(), summaries[0].SessionID)
}

func Test_GetInvite_Serves_QR_For_Open_Sessions(t *testing.T) {
	// Arrange
	g := newTestGateway(t)
	open := g.createSession(t, models.SessionStatusOpen, "A")
	active := g.createSession(t, models.SessionStatusActive, "B", "C")

	// Act
	resp, err := http.Get(g.server.URL + "/api/sessions/" + open.ID.String() + "/invite.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)

	closed, err := http.Get(g.server.URL + "/api/sessions/" + active.ID.String() + "/invite.png")
	require.NoError(t, err)
	closed.Body.Close()

	// Assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body.Bytes(), []byte("\x89PNG")))
	assert.Equal(t, http.StatusConflict, closed.StatusCode)
}

func Test_InviteURL(t *testing.T) {
	h := NewStateHandler(nil, "https://quizduel.test")
	id := uuid.MustParse("6f1c1e9a-6c8e-4f7e-9d1b-0a6b5c4d3e2f")

	assert.Equal(t, "https://quizduel.test/join?session_id=6f1c1e9a-6c8e-4f7e-9d1b-0a6b5c4d3e2f", h.InviteURL(id))
}

func Test_SessionConnection_Rejects_Unseated_Player(t *testing.T) {
	g := newTestGateway(t)
	s := g.createSession(t, models.SessionStatusActive, "A", "B")

	_, resp, err := g.dial(t, s.ID, "Z")

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, g.host.Running())
}

func Test_SessionConnection_Rejects_Unknown_Session(t *testing.T) {
	g := newTestGateway(t)

	_, resp, err := g.dial(t, uuid.New(), "A")

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_SessionConnection_Streams_Snapshots_And_Accepts_Answers(t *testing.T) {
	// Arrange
	g := newTestGateway(t)
	s := g.createSession(t, models.SessionStatusActive, "A", "B")

	conn, _, err := g.dial(t, s.ID, "A")
	require.NoError(t, err)
	defer conn.Close()

	open := readUntil(t, conn, func(m ServerMessage) bool {
		return m.Type == MessageTypeSnapshot && m.Snapshot.State == round.StateAwaitingAnswers
	})
	assert.Empty(t, open.Snapshot.Question.CorrectAnswer)
	assert.False(t, open.Snapshot.Answered)

	// Act
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubmitAnswer, Answer: "X"}))

	// Assert
	result := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MessageTypeAnswerResult })
	require.NotNil(t, result.Answer)
	assert.Equal(t, 0, result.Answer.Round)
	assert.Equal(t, "X", result.Answer.AnswerText)

	answered := readUntil(t, conn, func(m ServerMessage) bool {
		return m.Type == MessageTypeSnapshot && m.Snapshot.Answered
	})
	assert.Equal(t, 1, answered.Snapshot.Answers)

	stored, err := g.store.ListAnswers(context.Background(), s.ID, nil)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "A", stored[0].PlayerID)
}

func Test_SessionConnection_Reports_Bad_Messages(t *testing.T) {
	g := newTestGateway(t)
	s := g.createSession(t, models.SessionStatusActive, "A", "B")
	conn, _, err := g.dial(t, s.ID, "A")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	malformed := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MessageTypeError })
	assert.Equal(t, "malformed message", malformed.Error)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "dance"}))
	unknown := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MessageTypeError })
	assert.Contains(t, unknown.Error, "unknown message type")
}

func Test_SessionConnection_Detaches_After_Last_Socket(t *testing.T) {
	// Arrange
	g := newTestGateway(t)
	s := g.createSession(t, models.SessionStatusActive, "A", "B")

	first, _, err := g.dial(t, s.ID, "A")
	require.NoError(t, err)
	second, _, err := g.dial(t, s.ID, "A")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return g.service.GetStats().TotalConnections == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, g.host.Running())
	assert.Equal(t, 1, g.service.GetStats().ConnectedPlayers)

	// Act
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return g.service.GetStats().TotalConnections == 1 }, 2*time.Second, 10*time.Millisecond)
	stillRunning := g.host.Running()
	require.NoError(t, second.Close())

	// Assert
	assert.Equal(t, 1, stillRunning)
	require.Eventually(t, func() bool { return g.host.Running() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, g.service.GetStats().ActiveSessions)
}

func Test_SessionConnection_Replaces_Finished_Coordinator(t *testing.T) {
	// Arrange
	g := newTestGateway(t)
	s := g.createSession(t, models.SessionStatusFinished, "A", "B")
	key := seatKey{sessionID: s.ID, playerID: "A"}

	first, _, err := g.dial(t, s.ID, "A")
	require.NoError(t, err)
	defer first.Close()

	var finished *round.Coordinator
	require.Eventually(t, func() bool {
		c, ok := g.service.wsHandler.coordinatorFor(key)
		if !ok {
			return false
		}
		select {
		case <-c.Done():
			finished = c
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	// Act
	second, _, err := g.dial(t, s.ID, "A")
	require.NoError(t, err)
	defer second.Close()

	// Assert
	fresh, ok := g.service.wsHandler.coordinatorFor(key)
	require.True(t, ok)
	assert.NotSame(t, finished, fresh)
	final := readUntil(t, second, func(m ServerMessage) bool {
		return m.Type == MessageTypeSnapshot && m.Snapshot.State == round.StateMatchComplete
	})
	assert.Equal(t, models.SessionStatusFinished, final.Snapshot.Status)

	require.NoError(t, first.Close())
	require.NoError(t, second.Close())
	require.Eventually(t, func() bool {
		_, ok := g.service.wsHandler.coordinatorFor(key)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func Test_CORSMiddleware_Answers_Preflight(t *testing.T) {
	called := false
	h := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/sessions/active", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}
