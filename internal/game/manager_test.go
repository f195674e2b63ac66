package game

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kiliankoe/lyricsflip/internal/lyrics"
	"github.com/kiliankoe/lyricsflip/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestManager(t *testing.T, provider lyrics.Provider, exportFile string) (*Manager, *manualScheduler, *metrics.Metrics) {
	t.Helper()
	sched := &manualScheduler{}
	m := metrics.New(prometheus.NewRegistry())
	rm := NewManager(provider, ManagerOptions{
		Controller:   Options{TickInterval: time.Hour, Schedule: sched.schedule},
		Metrics:      m,
		ExportFile:   exportFile,
		DefaultGenre: "Pop",
	})
	t.Cleanup(rm.Shutdown)
	return rm, sched, m
}

func TestNewManager(t *testing.T) {
	rm := NewManager(countingProvider(3), ManagerOptions{})
	if rm.games == nil {
		t.Fatal("games map should be initialized")
	}
	if rm.Count() != 0 {
		t.Fatal("manager should start empty")
	}
}

func TestCreateGame(t *testing.T) {
	rm, _, m := newTestManager(t, countingProvider(3), "")

	g, err := rm.CreateGame(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("should be able to create game: %v", err)
	}
	if g.ID == "" {
		t.Fatal("game ID should not be empty")
	}

	got, err := rm.Get(g.ID)
	if err != nil {
		t.Fatalf("should be able to retrieve created game: %v", err)
	}
	if got != g {
		t.Fatal("Get should return the created game")
	}

	st := g.Controller.State()
	if st.Phase != PhaseRoundActive {
		t.Fatalf("expected phase %s, got %s", PhaseRoundActive, st.Phase)
	}
	if !st.IsGameStarted() {
		t.Fatal("game should be started")
	}
	if v := testutil.ToFloat64(m.ActiveGames); v != 1 {
		t.Fatalf("expected 1 active game, got %v", v)
	}
	if v := testutil.ToFloat64(m.GamesStarted); v != 1 {
		t.Fatalf("expected 1 started game, got %v", v)
	}
}

func TestCreateGameFillsDefaultGenre(t *testing.T) {
	p := countingProvider(3)
	rm, _, _ := newTestManager(t, p, "")

	cfg := testConfig()
	cfg.Genre = ""
	g, err := rm.CreateGame(context.Background(), cfg)
	if err != nil {
		t.Fatalf("should be able to create game: %v", err)
	}
	if genre := g.Session.State().Config.Genre; genre != "Pop" {
		t.Fatalf("expected default genre Pop, got %q", genre)
	}
}

func TestCreateGameInvalidConfig(t *testing.T) {
	rm, _, _ := newTestManager(t, countingProvider(3), "")

	cfg := testConfig()
	cfg.MaxRounds = -1
	_, err := rm.CreateGame(context.Background(), cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if rm.Count() != 0 {
		t.Fatal("invalid game should not be registered")
	}
}

func TestCreateGameKeepsFailedGame(t *testing.T) {
	p := countingProvider(3)
	p.errs = []error{lyrics.ErrUnavailable, lyrics.ErrUnavailable}
	rm, _, _ := newTestManager(t, p, "")

	g, err := rm.CreateGame(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("provider failure should not fail creation: %v", err)
	}
	st := g.Controller.State()
	if st.Phase != PhaseFailed || st.Failure == nil || !st.Failure.Recoverable {
		t.Fatalf("expected recoverable failure, got %+v", st)
	}
	if err := g.Controller.RetryRound(context.Background()); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
}

func TestGetUnknownGame(t *testing.T) {
	rm, _, _ := newTestManager(t, countingProvider(3), "")
	if _, err := rm.Get("missing"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
	if err := rm.Remove("missing"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestRemoveGame(t *testing.T) {
	rm, _, m := newTestManager(t, countingProvider(3), "")
	g, _ := rm.CreateGame(context.Background(), testConfig())

	if err := rm.Remove(g.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := rm.Get(g.ID); !errors.Is(err, ErrGameNotFound) {
		t.Fatal("removed game should be gone")
	}
	if g.Controller.State().Phase != PhaseIdle {
		t.Fatal("removed game should be stopped")
	}
	if v := testutil.ToFloat64(m.ActiveGames); v != 0 {
		t.Fatalf("expected 0 active games, got %v", v)
	}
}

func TestCleanupRemovesIdleGames(t *testing.T) {
	rm, _, _ := newTestManager(t, countingProvider(3), "")
	old, _ := rm.CreateGame(context.Background(), testConfig())
	fresh, _ := rm.CreateGame(context.Background(), testConfig())

	rm.mu.Lock()
	old.lastAccess = time.Now().Add(-3 * time.Hour)
	rm.mu.Unlock()

	if n := rm.Cleanup(time.Hour); n != 1 {
		t.Fatalf("expected 1 removed game, got %d", n)
	}
	if _, err := rm.Get(old.ID); err == nil {
		t.Fatal("idle game should be removed")
	}
	if _, err := rm.Get(fresh.ID); err != nil {
		t.Fatal("recent game should be kept")
	}
}

func TestSuspendAndResume(t *testing.T) {
	rm, sched, _ := newTestManager(t, countingProvider(5), "")
	g, _ := rm.CreateGame(context.Background(), testConfig())

	if !g.Controller.SelectOption(g.Controller.State().CurrentLyric.Answer(), 0) {
		t.Fatal("first selection should be accepted")
	}
	if err := rm.Suspend(g.ID); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	sched.flush()
	if g.Controller.State().Phase != PhaseIdle {
		t.Fatalf("suspended game should stay idle, got %s", g.Controller.State().Phase)
	}

	g2, err := rm.Resume(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	st := g2.Controller.State()
	if st.Phase != PhaseRoundActive {
		t.Fatalf("expected resumed round to be active, got %s", st.Phase)
	}
	if st.Session.Score != 1 || st.Session.RoundIndex != 1 {
		t.Fatalf("resume must keep score, got %d/%d", st.Session.Score, st.Session.RoundIndex)
	}
}

func TestFinishedGameIsExported(t *testing.T) {
	file := filepath.Join(t.TempDir(), "results.txt")
	rm, sched, _ := newTestManager(t, countingProvider(3), file)

	cfg := testConfig()
	cfg.MaxRounds = 1
	cfg.PassingScore = 1
	g, err := rm.CreateGame(context.Background(), cfg)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	g.Controller.SelectOption(g.Controller.State().CurrentLyric.Answer(), 0)
	sched.flush()

	deadline := time.Now().Add(2 * time.Second)
	for {
		data, err := os.ReadFile(file)
		if err == nil && strings.Contains(string(data), "Result: Win (completed)") {
			if !strings.Contains(string(data), g.ID) {
				t.Fatalf("export should name the game:\n%s", data)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("result was not exported (err=%v)", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCreateGameRejectsUnknownGenre(t *testing.T) {
	p := countingProvider(3)
	rm, _, _ := newTestManager(t, listedProvider{scriptedProvider: p, list: []string{"Pop"}}, "")

	cfg := testConfig()
	cfg.Genre = "NoSuchGenre"
	_, err := rm.CreateGame(context.Background(), cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if rm.Count() != 0 {
		t.Fatal("game with unknown genre should not be registered")
	}
	if p.Calls() != 0 {
		t.Fatalf("unknown genre should not reach the provider, got %d calls", p.Calls())
	}
}

func TestRestartAfterSuspendKeepsClockRunning(t *testing.T) {
	rm := NewManager(countingProvider(5), ManagerOptions{
		Controller:   Options{TickInterval: 5 * time.Millisecond, Schedule: (&manualScheduler{}).schedule},
		DefaultGenre: "Pop",
	})
	t.Cleanup(rm.Shutdown)

	g, err := rm.CreateGame(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := rm.Suspend(g.ID); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if err := g.Controller.RestartGame(context.Background(), testConfig()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if _, err := rm.Resume(context.Background(), g.ID); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for g.Session.State().TimeLeft >= 300 {
		if time.Now().After(deadline) {
			t.Fatalf("clock did not run after restart (phase %s)", g.Controller.State().Phase)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRemoveStopsClock(t *testing.T) {
	rm := NewManager(countingProvider(5), ManagerOptions{
		Controller: Options{TickInterval: 5 * time.Millisecond, Schedule: (&manualScheduler{}).schedule},
	})
	g, err := rm.CreateGame(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := rm.Remove(g.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	g.Controller.mu.Lock()
	running := g.Controller.runCancel != nil
	g.Controller.mu.Unlock()
	if running {
		t.Fatal("removed game should not keep its clock running")
	}
}

func TestEachFinishedSessionIsExported(t *testing.T) {
	file := filepath.Join(t.TempDir(), "results.txt")
	rm, sched, _ := newTestManager(t, countingProvider(3), file)

	cfg := testConfig()
	cfg.MaxRounds = 1
	cfg.PassingScore = 1
	g, err := rm.CreateGame(context.Background(), cfg)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	g.Controller.SelectOption(g.Controller.State().CurrentLyric.Answer(), 0)
	sched.flush()

	if err := g.Controller.RestartGame(context.Background(), cfg); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	g.Controller.SelectOption(wrongOption(*g.Controller.State().CurrentLyric), 1)
	sched.flush()

	deadline := time.Now().Add(2 * time.Second)
	for {
		data, _ := os.ReadFile(file)
		if strings.Count(string(data), "LyricsFlip Game Result") == 2 {
			if !strings.Contains(string(data), "Result: Win") || !strings.Contains(string(data), "Result: Loss") {
				t.Fatalf("expected one win and one loss:\n%s", data)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected two exported sessions, got:\n%s", data)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
