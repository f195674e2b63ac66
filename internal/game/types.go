package game

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kiliankoe/lyricsflip/internal/lyrics"
)

type Phase string

const (
	PhaseIdle        Phase = "Idle"
	PhaseLoading     Phase = "Loading"
	PhaseRoundActive Phase = "RoundActive"
	PhaseRevealed    Phase = "Revealed"
	PhaseFinished    Phase = "Finished"
	PhaseFailed      Phase = "Failed"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// TimerScope decides whether TimeLeft counts down one round or the whole session.
type TimerScope string

const (
	TimerScopeRound   TimerScope = "round"
	TimerScopeSession TimerScope = "session"
)

type GameConfig struct {
	Genre        string     `json:"genre" validate:"required"`
	Difficulty   Difficulty `json:"difficulty" validate:"oneof=Easy Medium Hard"`
	Duration     Duration   `json:"duration" validate:"gt=0"`
	Odds         float64    `json:"odds" validate:"gte=0"`
	WagerAmount  float64    `json:"wagerAmount" validate:"gte=0"`
	MaxRounds    int        `json:"maxRounds" validate:"gt=0"`
	PassingScore int        `json:"passingScore" validate:"gte=0,ltefield=MaxRounds"`
	TimerScope   TimerScope `json:"timerScope" validate:"oneof=round session"`
}

// PotWin is the payout shown next to the score; zero when nothing was wagered.
func (c GameConfig) PotWin() float64 {
	return c.WagerAmount * c.Odds
}

// Duration is a countdown length in whole seconds. It decodes from a JSON number of
// seconds or from strings such as "5 mins", "30 secs", "90s" or "2m".
type Duration int

func (d Duration) Seconds() int { return int(d) }

func (d Duration) String() string {
	return (time.Duration(d) * time.Second).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(d))
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be seconds or a string: %w", err)
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

var durationUnits = map[string]string{
	"s": "s", "sec": "s", "secs": "s", "second": "s", "seconds": "s",
	"m": "m", "min": "m", "mins": "m", "minute": "m", "minutes": "m",
	"h": "h", "hr": "h", "hrs": "h", "hour": "h", "hours": "h",
}

func ParseDuration(s string) (Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return Duration(n), nil
	}
	i := strings.IndexFunc(s, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
	if i <= 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	unit, ok := durationUnits[strings.TrimSpace(s[i:])]
	if !ok {
		return 0, fmt.Errorf("invalid duration unit in %q", s)
	}
	td, err := time.ParseDuration(s[:i] + unit)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return Duration(td / time.Second), nil
}

type GameResult struct {
	IsWin     bool   `json:"isWin"`
	Score     int    `json:"score"`
	MaxRounds int    `json:"maxRounds"`
	Reason    string `json:"reason"` // "completed" or "timeout"
}

const (
	ReasonCompleted = "completed"
	ReasonTimeout   = "timeout"
)

// SessionState is an immutable snapshot of a Session.
type SessionState struct {
	Config        GameConfig  `json:"gameConfig"`
	RoundIndex    int         `json:"roundIndex"`
	MaxRounds     int         `json:"maxRounds"`
	Score         int         `json:"score"`
	TimeLeft      int         `json:"timeLeft"`
	IsGameStarted bool        `json:"isGameStarted"`
	Result        *GameResult `json:"result,omitempty"`
}

// RoundState is an immutable snapshot of a Controller, including the session it
// drives. Pointer fields are nil when unset and never shared with the controller.
type RoundState struct {
	Phase          Phase          `json:"phase"`
	Generation     uint64         `json:"generation"`
	CurrentLyric   *lyrics.Round  `json:"currentLyric"`
	NextLyric      *lyrics.Round  `json:"nextLyric"`
	SelectedOption *lyrics.Option `json:"selectedOption"`
	SelectedIndex  int            `json:"selectedIndex"`
	CorrectOption  *lyrics.Option `json:"correctOption"`
	TimedOut       bool           `json:"timedOut"`
	IsCardFlipped  bool           `json:"isCardFlipped"`
	GameResult     *GameResult    `json:"gameResult"`
	Failure        *Failure       `json:"failure,omitempty"`
	Session        SessionState   `json:"session"`
}

func (s RoundState) IsGameStarted() bool { return s.Session.IsGameStarted }

// Failure is the error state surfaced to the presentation layer.
type Failure struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}
