package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/quizduel/go/internal/models"
)

// PostgresRepository reads the question bank from the questions table
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new Postgres question repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const questionColumns = `id, text, options, correct_answer, category, difficulty, created_at`

func scanQuestion(row pgx.Row) (*models.Question, error) {
	var (
		q                    models.Question
		options              []byte
		category, difficulty string
	)
	if err := row.Scan(&q.ID, &q.Text, &options, &q.CorrectAnswer, &category, &difficulty, &q.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	q.Category = models.QuestionCategory(category)
	q.Difficulty = models.QuestionDifficulty(difficulty)
	return &q, nil
}

func (r *PostgresRepository) ListQuestions(ctx context.Context, filter Filter) ([]models.Question, error) {
	var category, difficulty *string
	if filter.Category != "" {
		c := string(filter.Category)
		category = &c
	}
	if filter.Difficulty != "" {
		d := string(filter.Difficulty)
		difficulty = &d
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		WHERE ($1::text IS NULL OR category = $1)
		  AND ($2::text IS NULL OR difficulty = $2)
		ORDER BY created_at, id`,
		category, difficulty)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var out []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	q, err := scanQuestion(r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return q, nil
}

// UpsertQuestions writes qs in one batch, replacing rows with the same id.
func (r *PostgresRepository) UpsertQuestions(ctx context.Context, qs []models.Question) (int, error) {
	batch := &pgx.Batch{}
	for _, q := range qs {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal options for %s: %w", q.ID, err)
		}
		var createdAt *time.Time
		if !q.CreatedAt.IsZero() {
			createdAt = &q.CreatedAt
		}
		batch.Queue(`
			INSERT INTO questions (`+questionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::timestamptz, NOW()))
			ON CONFLICT (id) DO UPDATE SET
				text = EXCLUDED.text,
				options = EXCLUDED.options,
				correct_answer = EXCLUDED.correct_answer,
				category = EXCLUDED.category,
				difficulty = EXCLUDED.difficulty`,
			q.ID, q.Text, options, q.CorrectAnswer, string(q.Category), string(q.Difficulty), createdAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range qs {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("failed to upsert question %s: %w", qs[i].ID, err)
		}
	}
	return len(qs), nil
}
