package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/lyricsflip/internal/api"
	"github.com/kiliankoe/lyricsflip/internal/config"
	"github.com/kiliankoe/lyricsflip/internal/game"
	"github.com/kiliankoe/lyricsflip/internal/lyrics"
	"github.com/kiliankoe/lyricsflip/internal/lyrics/catalog"
	"github.com/kiliankoe/lyricsflip/internal/lyrics/remote"
	"github.com/kiliankoe/lyricsflip/internal/metrics"
	"github.com/kiliankoe/lyricsflip/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const version = "v1.0.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`LyricsFlip - Guess the song from its lyrics

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)

Environment Variables:
  PORT                Port to listen on (default: 8080)
  LOG_LEVEL           trace, debug, info, warn or error (default: info)
  LYRIC_PROVIDER      "catalog" or "remote" (default: catalog)
  LYRICS_FILE         JSON catalog replacing the built-in one (optional)
  LYRICS_API_URL      Base URL of the remote lyric service
  LYRICS_API_KEY      Bearer token for the remote lyric service
  DEFAULT_GENRE       Quick game genre (default: Pop)
  DEFAULT_DIFFICULTY  Quick game difficulty (default: Easy)
  DEFAULT_DURATION    Quick game duration, e.g. "5 mins" (default: 5 mins)
  DEFAULT_ODDS        Quick game odds (default: 1)
  DEFAULT_WAGER       Quick game wager (default: 0)
  MAX_ROUNDS          Rounds per game (default: 10)
  PASSING_SCORE       Correct answers needed to win (default: 6)
  TIMER_SCOPE         "session" or "round" (default: session)
  REVEAL_DELAY        Pause before the next card flips (default: 1500ms)
  FETCH_TIMEOUT       Timeout per lyric fetch (default: 10s)
  SESSION_TTL         Idle games are dropped after this (default: 2h)
  RATE_LIMIT_RPS      Requests per second per client (default: 5)
  RATE_LIMIT_BURST    Burst per client (default: 10)
  EXPORT_ENABLED      Append finished games to a file (default: false)
  EXPORT_FILE         Path for exported results (default: ./lyricsflip-results.txt)
  CORS_ORIGINS        Comma-separated allowed origins (default: *)
  METRICS_USER        Basic auth user for /metrics
  METRICS_PASS        Basic auth password for /metrics

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("LyricsFlip %s\n", version)
		return
	}

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(cw)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}

	quick, err := cfg.QuickGame()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid quick game defaults")
	}
	if err := quick.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid quick game defaults")
	}

	provider, err := newProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up lyric provider")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	mopts := game.ManagerOptions{
		Controller:   cfg.ControllerOptions(),
		Metrics:      m,
		DefaultGenre: cfg.DefaultGenre,
	}
	if cfg.ExportEnabled {
		mopts.ExportFile = cfg.ExportFile
	}
	manager := game.NewManager(provider, mopts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.StartCleanup(ctx, 10*time.Minute, cfg.SessionTTL)

	gin.SetMode(gin.ReleaseMode)
	srvAPI := api.New(manager, provider, api.Options{
		Defaults:       quick,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MetricsUser:    cfg.MetricsUser,
		MetricsPass:    cfg.MetricsPass,
		CORSOrigins:    cfg.CORSOrigins,
		Gatherer:       reg,
	})
	srvAPI.StartLimiterCleanup(ctx, 10*time.Minute, time.Hour)
	r := srvAPI.Router()

	sock := ws.New(manager, quick)
	io := sock.Mount(r)
	defer io.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		log.Info().Msg("shutdown signal received, shutting down gracefully")
		cancel()
		manager.Shutdown()
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("http server shutdown")
		}
		close(idleConnsClosed)
	}()

	log.Info().Str("port", cfg.Port).Str("provider", cfg.LyricProvider).Msg("listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
	<-idleConnsClosed
	log.Info().Msg("server shutdown complete")
}

func newProvider(cfg config.Config) (lyrics.Provider, error) {
	switch cfg.LyricProvider {
	case "remote":
		if cfg.LyricsAPIURL == "" {
			return nil, errors.New("LYRICS_API_URL is required for the remote provider")
		}
		return remote.New(cfg.LyricsAPIURL, cfg.LyricsAPIKey), nil
	case "catalog", "":
		if cfg.LyricsFile != "" {
			c, err := catalog.Load(cfg.LyricsFile)
			if err != nil {
				return nil, err
			}
			log.Info().Str("file", cfg.LyricsFile).Strs("genres", c.Genres()).Msg("loaded lyric catalog")
			return c, nil
		}
		return catalog.Default()
	default:
		return nil, fmt.Errorf("unknown LYRIC_PROVIDER %q", cfg.LyricProvider)
	}
}
