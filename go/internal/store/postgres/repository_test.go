package postgres

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/eskrenkovic/migrate-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const migrationsPath = "../../../db/migrations"

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() || os.Getenv("SKIP_INFRASTRUCTURE") == "true" {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	pgPort := nat.Port("5432/tcp")
	dsn := func(host string, port nat.Port) string {
		return fmt.Sprintf("postgres://quizduel:quizduel@%s:%s/quizduel?sslmode=disable", host, port.Port())
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{string(pgPort)},
			Env: map[string]string{
				"POSTGRES_USER":     "quizduel",
				"POSTGRES_PASSWORD": "quizduel",
				"POSTGRES_DB":       "quizduel",
			},
			WaitingFor: wait.ForSQL(pgPort, "postgres", dsn).WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatal(err)
	}
	port, err := container.MappedPort(ctx, pgPort)
	if err != nil {
		log.Fatal(err)
	}
	url := dsn(host, port)

	db, err := sql.Open("postgres", url)
	if err != nil {
		log.Fatal(err)
	}
	if err := migrate.Run(ctx, db, migrationsPath); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	_ = db.Close()

	testPool, err = pgxpool.New(ctx, url)
	if err != nil {
		log.Fatal(err)
	}

	code := m.Run()

	testPool.Close()
	if err := container.Terminate(ctx); err != nil {
		log.Printf("failed to terminate postgres container: %v", err)
	}
	os.Exit(code)
}

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	if testPool == nil {
		t.Skip("postgres integration tests need docker")
	}
	return NewRepository(testPool, clockwork.NewRealClock())
}

func createActive(t *testing.T, r *Repository, players ...string) *models.Session {
	t.Helper()
	scores := models.Scores{}
	for _, p := range players {
		scores.Ensure(p)
	}
	s, err := r.CreateSession(context.Background(), store.CreateSessionRequest{
		HostID:            players[0],
		Players:           players,
		Status:            models.SessionStatusActive,
		SelectedQuestions: []uuid.UUID{uuid.New(), uuid.New()},
		Question:          models.QuestionContext{QuestionID: uuid.New(), Options: []string{"X", "Y"}, CorrectAnswer: "X"},
		TimeLeft:          30,
		Scores:            scores,
	})
	require.NoError(t, err)
	return s
}

func Test_Postgres_CreateSession_Round_Trips(t *testing.T) {
	r := newTestRepository(t)
	s := createActive(t, r, "A", "B")

	got, err := r.GetSession(context.Background(), s.ID)

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got.Players)
	assert.Equal(t, models.SessionStatusActive, got.Status)
	assert.Equal(t, "X", got.Question.CorrectAnswer)
	assert.Equal(t, models.Scores{"A": 0, "B": 0}, got.Scores)
	assert.Len(t, got.SelectedQuestions, 2)
}

func Test_Postgres_UpdateSession_Single_Winner(t *testing.T) {
	// Arrange
	r := newTestRepository(t)
	s := createActive(t, r, "A", "B")
	ctx := context.Background()

	// Act
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.UpdateSession(ctx, s.ID, store.Precondition{CurrentRound: store.IntPtr(0)}, store.SessionChanges{
				CurrentRound: store.IntPtr(1),
				TimeLeft:     store.IntPtr(30),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, store.ErrPreconditionFailed)
				losses++
			}
		}()
	}
	wg.Wait()

	// Assert
	assert.Equal(t, 1, wins)
	assert.Equal(t, 5, losses)
}

func Test_Postgres_UpdateSession_Missing_Session(t *testing.T) {
	r := newTestRepository(t)

	_, err := r.UpdateSession(context.Background(), uuid.New(), store.Precondition{}, store.SessionChanges{CurrentRound: store.IntPtr(1)})

	assert.ErrorIs(t, err, store.ErrNotFound)
}

func Test_Postgres_CreateAnswer_Rules(t *testing.T) {
	r := newTestRepository(t)
	s := createActive(t, r, "A", "B")
	ctx := context.Background()

	_, err := r.CreateAnswer(ctx, models.Answer{SessionID: s.ID, PlayerID: "A", RoundNumber: 0, AnswerText: "X", IsCorrect: true})
	require.NoError(t, err)

	_, err = r.CreateAnswer(ctx, models.Answer{SessionID: s.ID, PlayerID: "A", RoundNumber: 0, AnswerText: "Y"})
	assert.ErrorIs(t, err, store.ErrDuplicateAnswer)

	_, err = r.CreateAnswer(ctx, models.Answer{SessionID: s.ID, PlayerID: "B", RoundNumber: 3, AnswerText: "Y"})
	assert.ErrorIs(t, err, store.ErrRoundClosed)

	_, err = r.CreateAnswer(ctx, models.Answer{SessionID: uuid.New(), PlayerID: "B", RoundNumber: 0, AnswerText: "Y"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func Test_Postgres_AddScore_And_Delete(t *testing.T) {
	r := newTestRepository(t)
	s := createActive(t, r, "A", "B")
	ctx := context.Background()

	_, err := r.AddScore(ctx, s.ID, "B", 12)
	require.NoError(t, err)
	got, err := r.AddScore(ctx, s.ID, "B", 3)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Scores["B"])

	require.NoError(t, r.DeleteSession(ctx, s.ID))
	_, err = r.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func Test_Postgres_CreateAnswer_Credits_Points_Without_Moving_Round_Start(t *testing.T) {
	r := newTestRepository(t)
	s := createActive(t, r, "A", "B")
	ctx := context.Background()

	_, err := r.CreateAnswer(ctx, models.Answer{SessionID: s.ID, PlayerID: "A", RoundNumber: 0, AnswerText: "X", IsCorrect: true, Points: 14})
	require.NoError(t, err)
	_, err = r.AddScore(ctx, s.ID, "B", 2)
	require.NoError(t, err)

	got, err := r.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Scores{"A": 14, "B": 2}, got.Scores)
	assert.True(t, s.RoundStartedAt.Equal(got.RoundStartedAt))

	advanced, err := r.UpdateSession(ctx, s.ID, store.Precondition{CurrentRound: store.IntPtr(0)}, store.SessionChanges{CurrentRound: store.IntPtr(1)})
	require.NoError(t, err)
	assert.False(t, advanced.RoundStartedAt.Before(got.LastActionTime))

	answers, err := r.ListAnswers(ctx, s.ID, nil)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, 14, answers[0].Points)
}
