package lyrics

import (
	"context"
	"errors"
)

var (
	ErrUnknownGenre = errors.New("unknown genre")
	ErrUnavailable  = errors.New("lyric source unavailable")
)

// Option is one title/artist answer choice. Two options are the same answer when
// both title and artist match.
type Option struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

func (o Option) Equal(other Option) bool {
	return o.Title == other.Title && o.Artist == other.Artist
}

// Round is a lyric fragment together with its answer and the choices shown to the
// player. Exactly one entry of Options equals the answer.
type Round struct {
	Text    string   `json:"text"`
	Title   string   `json:"title"`
	Artist  string   `json:"artist"`
	Options []Option `json:"options"`
}

func (r Round) Answer() Option {
	return Option{Title: r.Title, Artist: r.Artist}
}

// Clone returns a copy that does not share the options slice.
func (r Round) Clone() Round {
	out := r
	out.Options = append([]Option(nil), r.Options...)
	return out
}

type Provider interface {
	Next(ctx context.Context, genre string) (Round, error)
}

// GenreLister is implemented by providers that know their genres up front.
type GenreLister interface {
	Genres() []string
}
