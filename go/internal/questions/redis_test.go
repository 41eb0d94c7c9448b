package questions

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RedisRepository_Save_List_Get(t *testing.T) {
	// Arrange
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	repo := NewRedisRepository(client)
	ctx := context.Background()

	qs := append(testQuestions(2, models.QuestionCategoryLogic), testQuestions(3, models.QuestionCategoryEthics)...)

	// Act
	require.NoError(t, repo.SaveQuestions(ctx, qs))

	// Assert
	all, err := repo.ListQuestions(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	ethics, err := repo.ListQuestions(ctx, Filter{Category: models.QuestionCategoryEthics})
	require.NoError(t, err)
	assert.Len(t, ethics, 3)

	got, err := repo.GetQuestion(ctx, qs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, qs[0].Text, got.Text)
	assert.Equal(t, qs[0].Options, got.Options)

	_, err = repo.GetQuestion(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func Test_Draw_From_Redis_Bank(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	repo := NewRedisRepository(client)
	require.NoError(t, repo.SaveQuestions(context.Background(), testQuestions(6, models.QuestionCategoryLogic)))

	drawn, err := NewApp(repo, nil).Draw(context.Background(), 5, Filter{})

	require.NoError(t, err)
	assert.Len(t, drawn, 5)
}
