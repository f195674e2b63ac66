package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginGzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/lyricsflip/internal/game"
	"github.com/kiliankoe/lyricsflip/internal/lyrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"
)

type Options struct {
	// Defaults is the quick-game config; request bodies override it field by field.
	Defaults       game.GameConfig
	RateLimitRPS   int
	RateLimitBurst int
	MetricsUser    string
	MetricsPass    string
	// CORSOrigins lists allowed browser origins. Empty or "*" allows any.
	CORSOrigins []string
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type Server struct {
	manager  *game.Manager
	provider lyrics.Provider
	opts     Options
	limiter  *ipLimiter
}

func New(manager *game.Manager, provider lyrics.Provider, opts Options) *Server {
	return &Server{
		manager:  manager,
		provider: provider,
		opts:     opts,
		limiter:  newIPLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
	}
}

// Router builds a gin engine with the middleware stack and all routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger())
	r.Use(s.cors())
	s.Register(r)
	return r
}

func (s *Server) Register(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC(), "games": s.manager.Count()})
	})

	if s.opts.Gatherer != nil {
		h := gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
		if s.opts.MetricsUser != "" && s.opts.MetricsPass != "" {
			r.GET("/metrics", gin.BasicAuth(gin.Accounts{s.opts.MetricsUser: s.opts.MetricsPass}), h)
		} else {
			r.GET("/metrics", h)
		}
	}

	api := r.Group("/api")
	api.Use(ginGzip.Gzip(ginGzip.DefaultCompression))
	api.Use(cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	}))

	limited := s.limiter.middleware()
	api.GET("/genres", s.genres)
	api.GET("/config/defaults", s.defaults)
	api.POST("/games", limited, s.createGame)
	api.GET("/games/:id", s.getGame)
	api.DELETE("/games/:id", s.deleteGame)
	api.POST("/games/:id/select", limited, s.selectOption)
	api.POST("/games/:id/retry", limited, s.retryRound)
	api.POST("/games/:id/reset", limited, s.resetGame)
	api.POST("/games/:id/restart", limited, s.restartGame)
}

func (s *Server) cors() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Request-Id"},
		ExposeHeaders: []string{"X-Request-Id"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.opts.CORSOrigins) == 0 || lo.Contains(s.opts.CORSOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.opts.CORSOrigins
	}
	return cors.New(cfg)
}

// StartLimiterCleanup drops idle per-IP limiters every interval until ctx is done.
func (s *Server) StartLimiterCleanup(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.limiter.cleanup(ttl); n > 0 {
					log.Debug().Int("removed", n).Msg("cleaned up rate limiters")
				}
			}
		}
	}()
}

// bindConfig decodes an optional JSON config over the defaults.
func (s *Server) bindConfig(c *gin.Context) (game.GameConfig, error) {
	cfg := s.opts.Defaults
	if err := c.ShouldBindJSON(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return game.GameConfig{}, errors.Join(game.ErrInvalidConfig, err)
	}
	return cfg, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps game errors onto status codes and stable error codes.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, game.ErrInvalidConfig):
		status, code = http.StatusBadRequest, "invalid_config"
	case errors.Is(err, game.ErrGameNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, game.ErrSessionActive):
		status, code = http.StatusConflict, "session_active"
	case errors.Is(err, game.ErrNotRecoverable), errors.Is(err, game.ErrSessionNotStarted):
		status, code = http.StatusConflict, "invalid_phase"
	case errors.Is(err, game.ErrProviderUnavailable):
		status, code = http.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, game.ErrDataIntegrity):
		status, code = http.StatusBadGateway, "data_integrity"
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, errorBody{Error: code, Message: err.Error()})
}
