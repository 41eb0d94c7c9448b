package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Load_Reads_Repository_Config(t *testing.T) {
	g, err := Load("../../../config.yaml")

	require.NoError(t, err)
	assert.Equal(t, 2, g.Match.MaxPlayers)
	assert.Equal(t, 5, g.Match.RoundCount)
	assert.Equal(t, 30*time.Second, g.Round.RoundDuration)
	assert.Equal(t, 3*time.Second, g.Round.TransitionPause)
	assert.Equal(t, 10, g.Scoring.BasePoints)
	assert.Equal(t, "QUIZDUEL_EVENTS", g.Events.StreamName)
	assert.Equal(t, 2*time.Minute, g.Events.DuplicateWindow)
}

func Test_Load_Keeps_Defaults_For_Missing_Fields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("match:\n  round_count: 3\n"), 0o600))

	g, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 3, g.Match.RoundCount)
	assert.Equal(t, 2, g.Match.MaxPlayers)
	assert.Equal(t, 5*time.Second, g.Round.ResyncInterval)
}

func Test_Load_Rejects_Mismatched_Durations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("round:\n  round_duration: 20s\n"), 0o600))

	_, err := Load(path)

	assert.ErrorContains(t, err, "does not match")
}
