package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/redis/go-redis/v9"
)

const redisQuestionsKey = "quizduel:questions"

// RedisRepository keeps the question bank in a single hash keyed by question id.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository creates a new Redis question repository
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) ListQuestions(ctx context.Context, filter Filter) ([]models.Question, error) {
	raws, err := r.client.HVals(ctx, redisQuestionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	var out []models.Question
	for _, raw := range raws {
		var q models.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("failed to decode question: %w", err)
		}
		if filter.Matches(q) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *RedisRepository) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	raw, err := r.client.HGet(ctx, redisQuestionsKey, id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	var q models.Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("failed to decode question: %w", err)
	}
	return &q, nil
}

// SaveQuestions writes qs into the bank, replacing entries with the same id.
func (r *RedisRepository) SaveQuestions(ctx context.Context, qs []models.Question) error {
	if len(qs) == 0 {
		return nil
	}
	values := make([]any, 0, len(qs)*2)
	for _, q := range qs {
		raw, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("failed to encode question %s: %w", q.ID, err)
		}
		values = append(values, q.ID.String(), raw)
	}
	if err := r.client.HSet(ctx, redisQuestionsKey, values...).Err(); err != nil {
		return fmt.Errorf("failed to save questions: %w", err)
	}
	return nil
}
