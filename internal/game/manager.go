package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiliankoe/lyricsflip/internal/lyrics"
	"github.com/kiliankoe/lyricsflip/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Game is one player's session together with the controller driving it.
type Game struct {
	ID         string
	CreatedAt  time.Time
	Session    *Session
	Controller *Controller

	lastAccess time.Time
}

type ManagerOptions struct {
	Controller Options
	Metrics    *metrics.Metrics
	// ExportFile receives a summary of every finished game. Empty disables export.
	ExportFile string
	// DefaultGenre is used when a config does not name one.
	DefaultGenre string
}

type Manager struct {
	mu       sync.RWMutex
	games    map[string]*Game
	provider lyrics.Provider
	opts     ManagerOptions
}

func NewManager(provider lyrics.Provider, opts ManagerOptions) *Manager {
	return &Manager{
		games:    make(map[string]*Game),
		provider: provider,
		opts:     opts,
	}
}

// CreateGame starts a new game with cfg and loads its first round. A game whose
// first round failed to load is still registered so the player can see the
// failure and retry; only an invalid config is returned as an error.
func (m *Manager) CreateGame(ctx context.Context, cfg GameConfig) (*Game, error) {
	if cfg.Genre == "" {
		cfg.Genre = m.opts.DefaultGenre
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	copts := m.opts.Controller
	copts.GameID = id
	copts.Metrics = m.opts.Metrics
	if m.opts.ExportFile != "" {
		copts.OnFinish = m.export(id)
	}
	sess := NewSession()
	g := &Game{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		Session:    sess,
		Controller: NewController(sess, m.provider, cfg.Genre, copts),
		lastAccess: time.Now(),
	}

	m.mu.Lock()
	m.games[id] = g
	n := len(m.games)
	m.mu.Unlock()
	m.opts.Metrics.SetActiveGames(n)

	if err := g.Controller.StartGame(ctx, cfg); err != nil {
		if errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrSessionActive) {
			_ = m.Remove(id)
			return nil, err
		}
		log.Warn().Err(err).Str("game", id).Msg("first round failed to load")
	}
	return g, nil
}

// export appends the summary of each finished session of game id.
func (m *Manager) export(id string) func(RoundState) {
	var mu sync.Mutex
	return func(st RoundState) {
		go func() {
			mu.Lock()
			defer mu.Unlock()
			if err := ExportResult(id, st, m.opts.ExportFile); err != nil {
				log.Error().Err(err).Str("game", id).Msg("failed to export game result")
			}
		}()
	}
}

// Get returns the game and marks it as recently used.
func (m *Manager) Get(id string) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.games[id]
	if g == nil {
		return nil, ErrGameNotFound
	}
	g.lastAccess = time.Now()
	return g, nil
}

// Remove stops the game's controller and forgets it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	g := m.games[id]
	if g == nil {
		m.mu.Unlock()
		return ErrGameNotFound
	}
	delete(m.games, id)
	n := len(m.games)
	m.mu.Unlock()

	g.Controller.Stop()
	m.opts.Metrics.SetActiveGames(n)
	return nil
}

// Suspend stops the game's clock and in-flight fetches when its player navigates
// away. Score and round counter are kept for Resume.
func (m *Manager) Suspend(id string) error {
	g, err := m.Get(id)
	if err != nil {
		return err
	}
	g.Controller.Stop()
	return nil
}

// Resume remounts a suspended game: a fresh round is loaded for the running
// session and the clock restarts. A running session that was not suspended only
// gets its clock back.
func (m *Manager) Resume(ctx context.Context, id string) (*Game, error) {
	g, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if !g.Session.State().IsGameStarted {
		return g, nil
	}
	if g.Controller.State().Phase != PhaseIdle {
		g.Controller.Start(context.WithoutCancel(ctx))
		return g, nil
	}
	if err := g.Controller.Mount(ctx); err != nil {
		log.Warn().Err(err).Str("game", id).Msg("resumed round failed to load")
	}
	return g, nil
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}

// Cleanup removes games that have not been accessed within ttl and returns how
// many were dropped.
func (m *Manager) Cleanup(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	m.mu.RLock()
	var expired []string
	for id, g := range m.games {
		if g.lastAccess.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		if m.Remove(id) == nil {
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Int("remaining", m.Count()).Msg("cleaned up idle games")
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (m *Manager) StartCleanup(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Cleanup(ttl)
			}
		}
	}()
}

// Shutdown stops every game.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.games))
	for id := range m.games {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		_ = m.Remove(id)
	}
}
