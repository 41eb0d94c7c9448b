package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
)

// MemoryRepository serves a fixed question set.
type MemoryRepository struct {
	questions map[uuid.UUID]models.Question
	order     []uuid.UUID
}

// NewMemoryRepository indexes qs by id, keeping input order for listing.
func NewMemoryRepository(qs []models.Question) *MemoryRepository {
	r := &MemoryRepository{questions: make(map[uuid.UUID]models.Question, len(qs))}
	for _, q := range qs {
		if _, dup := r.questions[q.ID]; !dup {
			r.order = append(r.order, q.ID)
		}
		r.questions[q.ID] = q
	}
	return r
}

// LoadFile reads a JSON array of questions, as shipped in go/internal/assets.
func LoadFile(path string) ([]models.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions file: %w", err)
	}
	var qs []models.Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	for i, q := range qs {
		if err := Validate(q); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
	}
	return qs, nil
}

// Validate checks that q can be played.
func Validate(q models.Question) error {
	if q.ID == uuid.Nil {
		return fmt.Errorf("id is required")
	}
	if q.Text == "" {
		return fmt.Errorf("text is required")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("at least two options are required")
	}
	if !q.Category.Valid() {
		return fmt.Errorf("unknown category %q", q.Category)
	}
	if !q.Difficulty.Valid() {
		return fmt.Errorf("unknown difficulty %q", q.Difficulty)
	}
	for _, opt := range q.Options {
		if opt == q.CorrectAnswer {
			return nil
		}
	}
	return fmt.Errorf("correct answer %q is not among the options", q.CorrectAnswer)
}

func (r *MemoryRepository) ListQuestions(ctx context.Context, filter Filter) ([]models.Question, error) {
	var out []models.Question
	for _, id := range r.order {
		if q := r.questions[id]; filter.Matches(q) {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	q, ok := r.questions[id]
	if !ok {
		return nil, ErrQuestionNotFound
	}
	return &q, nil
}
