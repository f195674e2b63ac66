package game

import (
	"fmt"
	"strconv"

	"github.com/kiliankoe/lyricsflip/internal/lyrics"
	"github.com/samber/lo"
)

// Option marks rendered next to each choice.
const (
	MarkNone     = ""
	MarkCorrect  = "correct"
	MarkSelected = "selected"
)

type LyricView struct {
	Text   string `json:"text"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
}

type OptionView struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Mark   string `json:"mark,omitempty"`
}

// View is what a client is allowed to see of a RoundState. The answer of the
// current lyric stays hidden until the round is revealed.
type View struct {
	Phase          Phase          `json:"phase"`
	Lyric          *LyricView     `json:"lyric"`
	NextLyric      *LyricView     `json:"nextLyric"`
	Options        []OptionView   `json:"options"`
	Locked         bool           `json:"locked"`
	SelectedOption *lyrics.Option `json:"selectedOption"`
	CorrectOption  *lyrics.Option `json:"correctOption"`
	TimedOut       bool           `json:"timedOut"`
	IsCardFlipped  bool           `json:"isCardFlipped"`
	IsGameStarted  bool           `json:"isGameStarted"`
	TimeLeft       int            `json:"timeLeft"`
	RoundIndex     int            `json:"roundIndex"`
	Score          int            `json:"score"`
	MaxRounds      int            `json:"maxRounds"`
	ScoreText      string         `json:"scoreText"`
	PotWin         string         `json:"potWin"`
	GameConfig     GameConfig     `json:"gameConfig"`
	GameResult     *GameResult    `json:"gameResult"`
	Failure        *Failure       `json:"failure,omitempty"`
}

func (s RoundState) View() View {
	sess := s.Session
	v := View{
		Phase:          s.Phase,
		Locked:         s.CorrectOption != nil,
		SelectedOption: s.SelectedOption,
		CorrectOption:  s.CorrectOption,
		TimedOut:       s.TimedOut,
		IsCardFlipped:  s.IsCardFlipped,
		IsGameStarted:  sess.IsGameStarted,
		TimeLeft:       sess.TimeLeft,
		RoundIndex:     sess.RoundIndex,
		Score:          sess.Score,
		MaxRounds:      sess.MaxRounds,
		ScoreText:      fmt.Sprintf("%d / %d", sess.Score, sess.MaxRounds),
		PotWin:         FormatPotWin(sess.Config),
		GameConfig:     sess.Config,
		GameResult:     s.GameResult,
		Failure:        s.Failure,
	}
	if l := s.CurrentLyric; l != nil {
		v.Lyric = &LyricView{Text: l.Text}
		if v.Locked {
			v.Lyric.Title = l.Title
			v.Lyric.Artist = l.Artist
		}
		v.Options = lo.Map(l.Options, func(o lyrics.Option, i int) OptionView {
			return OptionView{Index: i, Title: o.Title, Artist: o.Artist, Mark: s.mark(o)}
		})
	}
	if s.NextLyric != nil {
		v.NextLyric = &LyricView{Text: s.NextLyric.Text}
	}
	return v
}

// mark highlights the correct answer once the round is locked and flags a wrong
// pick as selected.
func (s RoundState) mark(o lyrics.Option) string {
	switch {
	case s.CorrectOption == nil:
		return MarkNone
	case o.Equal(*s.CorrectOption):
		return MarkCorrect
	case s.SelectedOption != nil && o.Equal(*s.SelectedOption):
		return MarkSelected
	default:
		return MarkNone
	}
}

// FormatPotWin renders wager times odds, or "N/A" when nothing is at stake.
func FormatPotWin(cfg GameConfig) string {
	pot := cfg.PotWin()
	if pot <= 0 {
		return "N/A"
	}
	return strconv.FormatFloat(pot, 'f', -1, 64)
}
