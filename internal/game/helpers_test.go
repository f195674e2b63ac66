package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kiliankoe/lyricsflip/internal/lyrics"
	"github.com/kiliankoe/lyricsflip/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	shapeOfYou = lyrics.Option{Title: "Shape of You", Artist: "Ed Sheeran"}
	perfect    = lyrics.Option{Title: "Perfect", Artist: "Ed Sheeran"}
)

func shapeOfYouRound() lyrics.Round {
	return lyrics.Round{
		Text:    "round one",
		Title:   shapeOfYou.Title,
		Artist:  shapeOfYou.Artist,
		Options: []lyrics.Option{shapeOfYou, perfect},
	}
}

// numberedRound builds a well-formed four option round whose answer is "Song n".
func numberedRound(n int) lyrics.Round {
	answer := lyrics.Option{Title: songTitle(n), Artist: "Artist"}
	return lyrics.Round{
		Text:   "lyric " + songTitle(n),
		Title:  answer.Title,
		Artist: answer.Artist,
		Options: []lyrics.Option{
			answer,
			{Title: songTitle(n + 100), Artist: "Artist"},
			{Title: songTitle(n + 200), Artist: "Artist"},
			{Title: songTitle(n + 300), Artist: "Artist"},
		},
	}
}

func songTitle(n int) string {
	return "Song " + string(rune('A'+n%26)) + string(rune('a'+(n/26)%26))
}

func wrongOption(r lyrics.Round) lyrics.Option {
	for _, o := range r.Options {
		if !o.Equal(r.Answer()) {
			return o
		}
	}
	panic("round has no wrong option")
}

// scriptedProvider returns its errors first, then cycles through its rounds.
type scriptedProvider struct {
	mu     sync.Mutex
	rounds []lyrics.Round
	errs   []error
	next   int
	calls  int
	genres []string
}

func (p *scriptedProvider) Next(_ context.Context, genre string) (lyrics.Round, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.genres = append(p.genres, genre)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return lyrics.Round{}, err
		}
	}
	r := p.rounds[p.next%len(p.rounds)]
	p.next++
	return r.Clone(), nil
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// listedProvider is a scriptedProvider that also lists its genres.
type listedProvider struct {
	*scriptedProvider
	list []string
}

func (p listedProvider) Genres() []string { return p.list }

func countingProvider(n int) *scriptedProvider {
	p := &scriptedProvider{}
	for i := 0; i < n; i++ {
		p.rounds = append(p.rounds, numberedRound(i))
	}
	return p
}

// manualScheduler holds scheduled callbacks until flush.
type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
}

func (s *manualScheduler) schedule(_ time.Duration, f func()) {
	s.mu.Lock()
	s.pending = append(s.pending, f)
	s.mu.Unlock()
}

func (s *manualScheduler) flush() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, f := range pending {
		f()
	}
}

func (s *manualScheduler) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func testConfig() GameConfig {
	return GameConfig{
		Genre:        "Pop",
		Difficulty:   DifficultyEasy,
		Duration:     300,
		Odds:         1,
		WagerAmount:  0,
		MaxRounds:    10,
		PassingScore: 6,
		TimerScope:   TimerScopeSession,
	}
}

type harness struct {
	session  *Session
	ctrl     *Controller
	sched    *manualScheduler
	metrics  *metrics.Metrics
	provider lyrics.Provider
}

func newHarness(t *testing.T, provider lyrics.Provider) *harness {
	t.Helper()
	h := &harness{
		session:  NewSession(),
		sched:    &manualScheduler{},
		metrics:  metrics.New(prometheus.NewRegistry()),
		provider: provider,
	}
	h.ctrl = NewController(h.session, provider, "Pop", Options{
		GameID:       t.Name(),
		TickInterval: time.Hour,
		Metrics:      h.metrics,
		Schedule:     h.sched.schedule,
	})
	t.Cleanup(h.ctrl.Stop)
	return h
}

func assertSessionInvariant(t *testing.T, st RoundState) {
	t.Helper()
	s := st.Session
	if s.Score < 0 || s.Score > s.RoundIndex || (s.MaxRounds > 0 && s.RoundIndex > s.MaxRounds) {
		t.Fatalf("invariant broken: score=%d roundIndex=%d maxRounds=%d", s.Score, s.RoundIndex, s.MaxRounds)
	}
	if (st.CorrectOption != nil) != (st.SelectedOption != nil || st.TimedOut) {
		t.Fatalf("correctOption must be set exactly when the round was answered or timed out: %+v", st)
	}
}
