package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the quiz counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	GamesStarted   prometheus.Counter
	GamesFinished  *prometheus.CounterVec
	RoundsAnswered *prometheus.CounterVec
	FetchFailures  prometheus.Counter
	StaleFetches   prometheus.Counter
	ActiveGames    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GamesStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "lyricsflip_games_started_total",
			Help: "Sessions started or restarted.",
		}),
		GamesFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lyricsflip_games_finished_total",
			Help: "Sessions that reached a result, by outcome.",
		}, []string{"result"}),
		RoundsAnswered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lyricsflip_rounds_answered_total",
			Help: "Committed rounds by outcome (correct, incorrect, timeout).",
		}, []string{"outcome"}),
		FetchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "lyricsflip_lyric_fetch_failures_total",
			Help: "Lyric fetches that failed after the automatic retry.",
		}),
		StaleFetches: f.NewCounter(prometheus.CounterOpts{
			Name: "lyricsflip_stale_fetches_total",
			Help: "Lyric fetch results discarded because their round was abandoned.",
		}),
		ActiveGames: f.NewGauge(prometheus.GaugeOpts{
			Name: "lyricsflip_active_games",
			Help: "Games currently held in memory.",
		}),
	}
}

func (m *Metrics) GameStarted() {
	if m != nil {
		m.GamesStarted.Inc()
	}
}

func (m *Metrics) GameFinished(win bool) {
	if m == nil {
		return
	}
	result := "loss"
	if win {
		result = "win"
	}
	m.GamesFinished.WithLabelValues(result).Inc()
}

func (m *Metrics) RoundAnswered(outcome string) {
	if m != nil {
		m.RoundsAnswered.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) FetchFailed() {
	if m != nil {
		m.FetchFailures.Inc()
	}
}

func (m *Metrics) StaleFetch() {
	if m != nil {
		m.StaleFetches.Inc()
	}
}

func (m *Metrics) SetActiveGames(n int) {
	if m != nil {
		m.ActiveGames.Set(float64(n))
	}
}
