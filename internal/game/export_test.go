package game

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExportResult(t *testing.T) {
	file := filepath.Join(t.TempDir(), "results", "out.txt")
	cfg := testConfig()
	cfg.WagerAmount = 10
	cfg.Odds = 2
	st := RoundState{
		Phase:      PhaseFinished,
		GameResult: &GameResult{IsWin: true, Score: 7, MaxRounds: 10, Reason: ReasonCompleted},
		Session:    SessionState{Config: cfg, RoundIndex: 10, MaxRounds: 10, Score: 7},
	}

	if err := ExportResult("game-1", st, file); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if err := ExportResult("game-2", st, file); err != nil {
		t.Fatalf("second export failed: %v", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		"Game game-1",
		"Game game-2",
		"Genre: Pop | Difficulty: Easy | Duration: 5m0s (session timer)",
		"Score: 7 / 10 (pass at 6)",
		"Result: Win (completed)",
		"pot 20",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("export missing %q:\n%s", want, out)
		}
	}
}

func TestExportResultRequiresResult(t *testing.T) {
	file := filepath.Join(t.TempDir(), "out.txt")
	if err := ExportResult("game-1", RoundState{}, file); err == nil {
		t.Fatal("expected error for unfinished game")
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Fatal("no file should be written for unfinished game")
	}
}
