package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/quizduel/go/internal/models"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries holds the hand-written statements for the session tables.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const sessionColumns = `id, host_id, players, status, selected_questions, current_round,
	current_question, time_left, scores, last_action_time, round_started_at, created_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		s                               models.Session
		players, selected, question, sc []byte
		status                          string
	)
	if err := row.Scan(&s.ID, &s.HostID, &players, &status, &selected, &s.CurrentRound,
		&question, &s.TimeLeft, &sc, &s.LastActionTime, &s.RoundStartedAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	if err := json.Unmarshal(players, &s.Players); err != nil {
		return nil, fmt.Errorf("decode players: %w", err)
	}
	if err := json.Unmarshal(selected, &s.SelectedQuestions); err != nil {
		return nil, fmt.Errorf("decode selected questions: %w", err)
	}
	if err := json.Unmarshal(question, &s.Question); err != nil {
		return nil, fmt.Errorf("decode current question: %w", err)
	}
	if err := json.Unmarshal(sc, &s.Scores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	if s.Scores == nil {
		s.Scores = models.Scores{}
	}
	return &s, nil
}

func (q *Queries) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return scanSession(q.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM game_sessions WHERE id = $1`, id))
}

func (q *Queries) SessionExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM game_sessions WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

type ListSessionsParams struct {
	Status       *string
	HostID       *string
	PlayersBelow *int
	Limit        *int
}

func (q *Queries) ListSessions(ctx context.Context, arg ListSessionsParams) ([]models.Session, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM game_sessions
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR host_id = $2)
		  AND ($3::int IS NULL OR jsonb_array_length(players) < $3)
		ORDER BY created_at, id
		LIMIT $4`,
		arg.Status, arg.HostID, arg.PlayersBelow, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type InsertSessionParams struct {
	ID                uuid.UUID
	HostID            string
	Players           []byte
	Status            string
	SelectedQuestions []byte
	Question          []byte
	TimeLeft          int
	Scores            []byte
	Now               time.Time
}

func (q *Queries) InsertSession(ctx context.Context, arg InsertSessionParams) (*models.Session, error) {
	return scanSession(q.db.QueryRow(ctx, `
		INSERT INTO game_sessions (id, host_id, players, status, selected_questions, current_round,
			current_question, time_left, scores, last_action_time, round_started_at, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9, $9, $9)
		RETURNING `+sessionColumns,
		arg.ID, arg.HostID, arg.Players, arg.Status, arg.SelectedQuestions, arg.Question,
		arg.TimeLeft, arg.Scores, arg.Now))
}

// ConditionalUpdateParams pairs the precondition (Expect*) with the new values (Set*).
// Nil fields are not checked or not changed.
type ConditionalUpdateParams struct {
	ID                uuid.UUID
	ExpectRound       *int
	ExpectStatus      *string
	ExpectPlayerCount *int
	SetPlayers        []byte
	SetStatus         *string
	SetRound          *int
	SetTimeLeft       *int
	SetQuestion       []byte
	SetScores         []byte
	Now               time.Time
	// OpensRound also moves round_started_at to Now.
	OpensRound        bool
}

// ConditionalUpdate applies the change only when every expectation holds and the
// status does not move backwards. pgx.ErrNoRows means nothing was written.
func (q *Queries) ConditionalUpdate(ctx context.Context, arg ConditionalUpdateParams) (*models.Session, error) {
	return scanSession(q.db.QueryRow(ctx, `
		UPDATE game_sessions SET
			players          = COALESCE($5::jsonb, players),
			status           = COALESCE($6::text, status),
			current_round    = COALESCE($7::int, current_round),
			time_left        = COALESCE($8::int, time_left),
			current_question = COALESCE($9::jsonb, current_question),
			scores           = COALESCE($10::jsonb, scores),
			last_action_time = $11,
			round_started_at = CASE WHEN $12::bool THEN $11 ELSE round_started_at END
		WHERE id = $1
		  AND ($2::int IS NULL OR current_round = $2)
		  AND ($3::text IS NULL OR status = $3)
		  AND ($4::int IS NULL OR jsonb_array_length(players) = $4)
		  AND ($6::text IS NULL OR
		       (CASE status WHEN 'OPEN' THEN 0 WHEN 'ACTIVE' THEN 1 ELSE 2 END) <=
		       (CASE $6::text WHEN 'OPEN' THEN 0 WHEN 'ACTIVE' THEN 1 ELSE 2 END))
		RETURNING `+sessionColumns,
		arg.ID, arg.ExpectRound, arg.ExpectStatus, arg.ExpectPlayerCount,
		arg.SetPlayers, arg.SetStatus, arg.SetRound, arg.SetTimeLeft, arg.SetQuestion, arg.SetScores,
		arg.Now, arg.OpensRound))
}

func (q *Queries) AddScore(ctx context.Context, id uuid.UUID, playerID string, points int, now time.Time) (*models.Session, error) {
	return scanSession(q.db.QueryRow(ctx, `
		UPDATE game_sessions SET
			scores = jsonb_set(scores, ARRAY[$2::text],
				to_jsonb(COALESCE((scores ->> $2::text)::int, 0) + GREATEST($3::int, 0))),
			last_action_time = $4
		WHERE id = $1
		RETURNING `+sessionColumns,
		id, playerID, points, now))
}

func (q *Queries) DeleteSession(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM game_sessions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// LockSessionRound locks the session row so no advance can commit while an
// answer for the current round is being inserted and scored.
func (q *Queries) LockSessionRound(ctx context.Context, id uuid.UUID) (status string, round int, err error) {
	err = q.db.QueryRow(ctx, `SELECT status, current_round FROM game_sessions WHERE id = $1 FOR UPDATE`, id).
		Scan(&status, &round)
	return status, round, err
}

func (q *Queries) AnswerExists(ctx context.Context, sessionID uuid.UUID, playerID string, round int) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM player_answers
			WHERE session_id = $1 AND player_id = $2 AND round_number = $3)`,
		sessionID, playerID, round).Scan(&exists)
	return exists, err
}

const answerColumns = `id, session_id, player_id, round_number, answer, is_correct, time_left, points, submitted_at`

func scanAnswer(row pgx.Row) (*models.Answer, error) {
	var a models.Answer
	if err := row.Scan(&a.ID, &a.SessionID, &a.PlayerID, &a.RoundNumber, &a.AnswerText,
		&a.IsCorrect, &a.TimeLeftAtSubmission, &a.Points, &a.SubmittedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertAnswer returns pgx.ErrNoRows when the (session, player, round) already exists.
func (q *Queries) InsertAnswer(ctx context.Context, a models.Answer) (*models.Answer, error) {
	return scanAnswer(q.db.QueryRow(ctx, `
		INSERT INTO player_answers (`+answerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, player_id, round_number) DO NOTHING
		RETURNING `+answerColumns,
		a.ID, a.SessionID, a.PlayerID, a.RoundNumber, a.AnswerText, a.IsCorrect,
		a.TimeLeftAtSubmission, a.Points, a.SubmittedAt))
}

func (q *Queries) ListAnswers(ctx context.Context, sessionID uuid.UUID, round *int) ([]models.Answer, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+answerColumns+`
		FROM player_answers
		WHERE session_id = $1 AND ($2::int IS NULL OR round_number = $2)
		ORDER BY submitted_at, id`,
		sessionID, round)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type InsertOutboxParams struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

func (q *Queries) InsertOutbox(ctx context.Context, arg InsertOutboxParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO session_outbox (id, session_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		arg.ID, arg.SessionID, arg.EventType, arg.Payload, arg.CreatedAt)
	return err
}
