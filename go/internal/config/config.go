package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/quizduel/go/internal/changefeed"
	"github.com/mcdev12/quizduel/go/internal/matchmaker"
	"github.com/mcdev12/quizduel/go/internal/round"
	"github.com/mcdev12/quizduel/go/internal/scoring"
	"gopkg.in/yaml.v3"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Game is the YAML game configuration.
type Game struct {
	Match     matchmaker.Config `yaml:"match"`
	Scoring   scoring.Policy    `yaml:"scoring"`
	Round     round.Config      `yaml:"round"`
	Questions struct {
		// Source is "asset", "postgres" or "redis".
		Source    string `yaml:"source"`
		AssetPath string `yaml:"asset_path"`
	} `yaml:"questions"`
	Events changefeed.Config `yaml:"events"`
}

// Default returns the standard two-player, five-round, thirty-second game.
func Default() *Game {
	g := &Game{
		Match:   matchmaker.DefaultConfig(),
		Scoring: scoring.DefaultPolicy(),
		Round:   round.DefaultConfig(),
		Events:  changefeed.DefaultConfig(),
	}
	g.Questions.Source = "asset"
	g.Questions.AssetPath = "go/internal/assets/questions.json"
	return g
}

// Load reads path over the defaults. Fields the file leaves out keep their default.
func Load(path string) (*Game, error) {
	g := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks that the pieces agree with each other.
func (g *Game) Validate() error {
	if g.Match.RoundDurationSec < 1 {
		return fmt.Errorf("validation failed: match.round_duration_sec must be positive")
	}
	if g.Round.RoundDuration != time.Duration(g.Match.RoundDurationSec)*time.Second {
		return fmt.Errorf("validation failed: round.round_duration %s does not match match.round_duration_sec %d",
			g.Round.RoundDuration, g.Match.RoundDurationSec)
	}
	if g.Scoring.RoundDurationSec != g.Match.RoundDurationSec {
		return fmt.Errorf("validation failed: scoring.round_duration_sec %d does not match match.round_duration_sec %d",
			g.Scoring.RoundDurationSec, g.Match.RoundDurationSec)
	}
	if g.Round.TickInterval <= 0 {
		return fmt.Errorf("validation failed: round.tick_interval must be positive")
	}
	switch g.Questions.Source {
	case "asset", "postgres", "redis":
	default:
		return fmt.Errorf("validation failed: unknown questions.source %q", g.Questions.Source)
	}
	return nil
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
