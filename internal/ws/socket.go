package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/kiliankoe/lyricsflip/internal/game"
	"github.com/kiliankoe/lyricsflip/internal/lyrics"
	"github.com/rs/zerolog/log"
)

type ConnCtx struct {
	GameID      string
	unsubscribe func()
}

type Server struct {
	manager  *game.Manager
	defaults game.GameConfig

	mu      sync.Mutex
	members map[string]map[string]socketio.Conn // gameID -> socketID -> Conn
}

func New(manager *game.Manager, defaults game.GameConfig) *Server {
	return &Server{manager: manager, defaults: defaults, members: make(map[string]map[string]socketio.Conn)}
}

type configPayload struct {
	Config json.RawMessage `json:"config"`
}

// config decodes the payload's fields over the quick-game defaults.
func (srv *Server) config(p configPayload) (game.GameConfig, error) {
	cfg := srv.defaults
	if len(p.Config) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(p.Config, &cfg); err != nil {
		return game.GameConfig{}, errors.Join(game.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Mount attaches the Socket.IO server with the game handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	// game:create
	io.OnEvent("/", "game:create", func(s socketio.Conn, payload configPayload) map[string]any {
		cfg, err := srv.config(payload)
		if err != nil {
			return srv.err(s, err)
		}
		g, err := srv.manager.CreateGame(context.Background(), cfg)
		if err != nil {
			return srv.err(s, err)
		}
		srv.attach(s, g)
		log.Info().Str("sid", s.ID()).Str("game", g.ID).Msg("game:create")
		return map[string]any{"gameId": g.ID, "state": g.Controller.State().View()}
	})

	// game:resume (reconnection or returning to the game screen)
	io.OnEvent("/", "game:resume", func(s socketio.Conn, payload struct {
		GameID string `json:"gameId"`
	}) map[string]any {
		g, err := srv.manager.Resume(context.Background(), payload.GameID)
		if err != nil {
			return srv.err(s, err)
		}
		srv.attach(s, g)
		log.Info().Str("sid", s.ID()).Str("game", g.ID).Msg("game:resume")
		return map[string]any{"gameId": g.ID, "state": g.Controller.State().View()}
	})

	// game:select
	io.OnEvent("/", "game:select", func(s socketio.Conn, payload struct {
		Title  string `json:"title"`
		Artist string `json:"artist"`
		Index  int    `json:"index"`
	}) map[string]any {
		g, err := srv.current(s)
		if err != nil {
			return srv.err(s, err)
		}
		ok := g.Controller.SelectOption(lyrics.Option{Title: payload.Title, Artist: payload.Artist}, payload.Index)
		log.Info().Str("game", g.ID).Bool("accepted", ok).Msg("game:select")
		return map[string]any{"accepted": ok}
	})

	// game:retry
	io.OnEvent("/", "game:retry", func(s socketio.Conn) map[string]any {
		g, err := srv.current(s)
		if err != nil {
			return srv.err(s, err)
		}
		if err := g.Controller.RetryRound(context.Background()); err != nil {
			return srv.err(s, err)
		}
		return map[string]any{"ok": true}
	})

	// game:reset
	io.OnEvent("/", "game:reset", func(s socketio.Conn) map[string]any {
		g, err := srv.current(s)
		if err != nil {
			return srv.err(s, err)
		}
		g.Controller.Reset()
		return map[string]any{"ok": true}
	})

	// game:restart
	io.OnEvent("/", "game:restart", func(s socketio.Conn, payload configPayload) map[string]any {
		g, err := srv.current(s)
		if err != nil {
			return srv.err(s, err)
		}
		cfg, err := srv.config(payload)
		if err != nil {
			return srv.err(s, err)
		}
		if err := g.Controller.RestartGame(context.Background(), cfg); err != nil {
			return srv.err(s, err)
		}
		return map[string]any{"ok": true}
	})

	// game:leave stops the round in flight; game:resume picks it up again.
	io.OnEvent("/", "game:leave", func(s socketio.Conn) map[string]any {
		ctx, _ := s.Context().(*ConnCtx)
		if ctx == nil || ctx.GameID == "" {
			return map[string]any{"ok": true}
		}
		id := ctx.GameID
		srv.detach(s)
		if err := srv.manager.Suspend(id); err != nil && !errors.Is(err, game.ErrGameNotFound) {
			return srv.err(s, err)
		}
		log.Info().Str("sid", s.ID()).Str("game", id).Msg("game:leave")
		return map[string]any{"ok": true}
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		srv.detach(s)
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io server stopped")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	return io
}

// attach binds the connection to g and pushes every controller change to it.
func (srv *Server) attach(s socketio.Conn, g *game.Game) {
	srv.detach(s)
	id := g.ID
	unsubscribe := g.Controller.Subscribe(func(st game.RoundState) {
		s.Emit("game:state", map[string]any{"gameId": id, "state": st.View()})
	})
	s.SetContext(&ConnCtx{GameID: id, unsubscribe: unsubscribe})

	srv.mu.Lock()
	if srv.members[id] == nil {
		srv.members[id] = make(map[string]socketio.Conn)
	}
	srv.members[id][s.ID()] = s
	srv.mu.Unlock()

	s.Emit("game:state", map[string]any{"gameId": id, "state": g.Controller.State().View()})
}

func (srv *Server) detach(s socketio.Conn) {
	ctx, ok := s.Context().(*ConnCtx)
	if !ok || ctx.GameID == "" {
		return
	}
	if ctx.unsubscribe != nil {
		ctx.unsubscribe()
	}
	srv.mu.Lock()
	if m := srv.members[ctx.GameID]; m != nil {
		delete(m, s.ID())
		if len(m) == 0 {
			delete(srv.members, ctx.GameID)
		}
	}
	srv.mu.Unlock()
	s.SetContext(&ConnCtx{})
}

// Watching reports how many connections follow the game.
func (srv *Server) Watching(gameID string) int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.members[gameID])
}

func (srv *Server) current(s socketio.Conn) (*game.Game, error) {
	ctx, _ := s.Context().(*ConnCtx)
	if ctx == nil || ctx.GameID == "" {
		return nil, game.ErrGameNotFound
	}
	return srv.manager.Get(ctx.GameID)
}

func (srv *Server) err(s socketio.Conn, err error) map[string]any {
	code := errorCode(err)
	s.Emit("error", map[string]any{"code": code, "message": err.Error()})
	return map[string]any{"error": code}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, game.ErrGameNotFound):
		return "not_found"
	case errors.Is(err, game.ErrSessionActive):
		return "session_active"
	case errors.Is(err, game.ErrNotRecoverable), errors.Is(err, game.ErrSessionNotStarted):
		return "invalid_phase"
	case errors.Is(err, game.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, game.ErrDataIntegrity):
		return "data_integrity"
	default:
		return "internal"
	}
}
