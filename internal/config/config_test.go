package config

import (
	"testing"
	"time"

	"github.com/kiliankoe/lyricsflip/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	c, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "catalog", c.LyricProvider)
	assert.Equal(t, 1500*time.Millisecond, c.RevealDelay)

	qg, err := c.QuickGame()
	require.NoError(t, err)
	assert.Equal(t, game.GameConfig{
		Genre:        "Pop",
		Difficulty:   game.DifficultyEasy,
		Duration:     300,
		Odds:         1,
		WagerAmount:  0,
		MaxRounds:    10,
		PassingScore: 6,
		TimerScope:   game.TimerScopeSession,
	}, qg)
	assert.NoError(t, qg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("DEFAULT_DURATION", "30 secs")
	t.Setenv("TIMER_SCOPE", "round")
	t.Setenv("MAX_ROUNDS", "5")
	t.Setenv("PASSING_SCORE", "3")
	t.Setenv("REVEAL_DELAY", "0s")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "3000", c.Port)

	qg, err := c.QuickGame()
	require.NoError(t, err)
	assert.Equal(t, game.Duration(30), qg.Duration)
	assert.Equal(t, game.TimerScopeRound, qg.TimerScope)
	assert.Equal(t, 5, qg.MaxRounds)
	assert.Equal(t, time.Duration(0), c.ControllerOptions().RevealDelay)
}

func TestFromEnvBadDuration(t *testing.T) {
	t.Setenv("DEFAULT_DURATION", "forever")
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestFromEnvBadNumber(t *testing.T) {
	t.Setenv("MAX_ROUNDS", "ten")
	_, err := FromEnv()
	assert.Error(t, err)
}
