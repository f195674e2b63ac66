package game

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportResult appends a summary of a finished game to a text file.
func ExportResult(id string, st RoundState, filename string) error {
	if st.GameResult == nil {
		return fmt.Errorf("game %s has no result", id)
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	fileExists := false
	if _, err := os.Stat(filename); err == nil {
		fileExists = true
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	cfg := st.Session.Config
	res := st.GameResult

	var sb strings.Builder
	if fileExists {
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("LyricsFlip Game Result - Game %s\n", id))
	sb.WriteString(fmt.Sprintf("Finished: %s\n", time.Now().Format("2006-01-02 15:04:05")))
	sb.WriteString(strings.Repeat("=", 50) + "\n")
	sb.WriteString(fmt.Sprintf("Genre: %s | Difficulty: %s | Duration: %s (%s timer)\n", cfg.Genre, cfg.Difficulty, cfg.Duration, cfg.TimerScope))
	sb.WriteString(fmt.Sprintf("Score: %d / %d (pass at %d)\n", res.Score, res.MaxRounds, cfg.PassingScore))

	outcome := "Loss"
	if res.IsWin {
		outcome = "Win"
	}
	sb.WriteString(fmt.Sprintf("Result: %s (%s)\n", outcome, res.Reason))
	sb.WriteString(fmt.Sprintf("Wager: %g at odds %g, pot %s\n", cfg.WagerAmount, cfg.Odds, FormatPotWin(cfg)))
	sb.WriteString(strings.Repeat("=", 50) + "\n")

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}
