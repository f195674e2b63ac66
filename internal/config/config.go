package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/kiliankoe/lyricsflip/internal/game"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// LyricProvider selects the lyric source: "catalog" or "remote".
	LyricProvider string `envconfig:"LYRIC_PROVIDER" default:"catalog"`
	LyricsFile    string `envconfig:"LYRICS_FILE"`
	LyricsAPIURL  string `envconfig:"LYRICS_API_URL"`
	LyricsAPIKey  string `envconfig:"LYRICS_API_KEY"`

	DefaultGenre      string  `envconfig:"DEFAULT_GENRE" default:"Pop"`
	DefaultDifficulty string  `envconfig:"DEFAULT_DIFFICULTY" default:"Easy"`
	DefaultDuration   string  `envconfig:"DEFAULT_DURATION" default:"5 mins"`
	DefaultOdds       float64 `envconfig:"DEFAULT_ODDS" default:"1"`
	DefaultWager      float64 `envconfig:"DEFAULT_WAGER" default:"0"`
	MaxRounds         int     `envconfig:"MAX_ROUNDS" default:"10"`
	PassingScore      int     `envconfig:"PASSING_SCORE" default:"6"`
	TimerScope        string  `envconfig:"TIMER_SCOPE" default:"session"`

	RevealDelay  time.Duration `envconfig:"REVEAL_DELAY" default:"1500ms"`
	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
	TickInterval time.Duration `envconfig:"TICK_INTERVAL" default:"1s"`
	SessionTTL   time.Duration `envconfig:"SESSION_TTL" default:"2h"`

	RateLimitRPS   int `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int `envconfig:"RATE_LIMIT_BURST" default:"10"`

	ExportEnabled bool   `envconfig:"EXPORT_ENABLED" default:"false"`
	ExportFile    string `envconfig:"EXPORT_FILE" default:"./lyricsflip-results.txt"`

	// CORSOrigins lists allowed browser origins; "*" allows any.
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	MetricsUser string `envconfig:"METRICS_USER"`
	MetricsPass string `envconfig:"METRICS_PASS"`
}

// FromEnv loads an optional .env file and then reads the environment.
func FromEnv() (Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if _, err := c.QuickGame(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// QuickGame is the config a game starts with when the player does not pick one.
func (c Config) QuickGame() (game.GameConfig, error) {
	d, err := game.ParseDuration(c.DefaultDuration)
	if err != nil {
		return game.GameConfig{}, fmt.Errorf("DEFAULT_DURATION: %w", err)
	}
	return game.GameConfig{
		Genre:        c.DefaultGenre,
		Difficulty:   game.Difficulty(c.DefaultDifficulty),
		Duration:     d,
		Odds:         c.DefaultOdds,
		WagerAmount:  c.DefaultWager,
		MaxRounds:    c.MaxRounds,
		PassingScore: c.PassingScore,
		TimerScope:   game.TimerScope(c.TimerScope),
	}, nil
}

func (c Config) ControllerOptions() game.Options {
	return game.Options{
		RevealDelay:  c.RevealDelay,
		TickInterval: c.TickInterval,
		FetchTimeout: c.FetchTimeout,
	}
}
