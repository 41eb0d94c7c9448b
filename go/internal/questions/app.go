package questions

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
)

// Repository is the read-only question bank
type Repository interface {
	ListQuestions(ctx context.Context, filter Filter) ([]models.Question, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
}

// App handles question bank lookups and draws
type App struct {
	repo Repository

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewApp creates a new questions App. A nil rng uses a randomly seeded source.
func NewApp(repo Repository, rng *rand.Rand) *App {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &App{
		repo: repo,
		rng:  rng,
	}
}

// Draw picks n distinct questions uniformly at random without replacement.
func (a *App) Draw(ctx context.Context, n int, filter Filter) ([]models.Question, error) {
	if n <= 0 {
		return nil, fmt.Errorf("round count must be greater than 0")
	}

	pool, err := a.repo.ListQuestions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	if len(pool) < n {
		return nil, fmt.Errorf("need %d questions, bank has %d: %w", n, len(pool), ErrInsufficientQuestions)
	}

	a.rngMu.Lock()
	perm := a.rng.Perm(len(pool))
	a.rngMu.Unlock()

	drawn := make([]models.Question, n)
	for i := 0; i < n; i++ {
		drawn[i] = pool[perm[i]]
	}
	return drawn, nil
}

// GetQuestion retrieves a question by ID
func (a *App) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	q, err := a.repo.GetQuestion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return q, nil
}

// ListQuestions lists questions matching filter
func (a *App) ListQuestions(ctx context.Context, filter Filter) ([]models.Question, error) {
	qs, err := a.repo.ListQuestions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return qs, nil
}
