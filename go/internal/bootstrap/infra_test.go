package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizduel/go/internal/config"
	"github.com/mcdev12/quizduel/go/internal/questions"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Open_Memory_Backend_With_Asset(t *testing.T) {
	// Arrange
	game := config.Default()
	game.Questions.AssetPath = filepath.Join("..", "assets", "questions.json")

	// Act
	infra, err := Open(context.Background(), Options{StoreBackend: config.BackendMemory}, game, clockwork.NewFakeClock())
	require.NoError(t, err)
	defer infra.Close()

	// Assert
	assert.NotNil(t, infra.Store)
	assert.Nil(t, infra.Pool)
	assert.Nil(t, infra.Redis)
	qs, err := infra.Questions.ListQuestions(context.Background(), questions.Filter{})
	require.NoError(t, err)
	assert.NotEmpty(t, qs)
}

func Test_Open_Rejects_Unknown_Backend(t *testing.T) {
	game := config.Default()

	_, err := Open(context.Background(), Options{StoreBackend: "etcd"}, game, clockwork.NewFakeClock())

	assert.ErrorContains(t, err, `unknown store backend "etcd"`)
}

func Test_Open_Reports_Missing_Asset(t *testing.T) {
	game := config.Default()
	game.Questions.AssetPath = filepath.Join(t.TempDir(), "missing.json")

	_, err := Open(context.Background(), Options{StoreBackend: config.BackendMemory}, game, clockwork.NewFakeClock())

	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func Test_SetupLogging_Levels(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	assert.Equal(t, zerolog.DebugLevel, SetupLogging("debug"))
	assert.Equal(t, zerolog.InfoLevel, SetupLogging(""))
	assert.Equal(t, zerolog.InfoLevel, SetupLogging("loud"))
}
