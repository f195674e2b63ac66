package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/kiliankoe/lyricsflip/internal/lyrics"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/samber/lo/mutable"
)

const DefaultOptionCount = 4

//go:embed data/lyrics.json
var bundled []byte

type Entry struct {
	Text   string `json:"text"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Genre  string `json:"genre"`
}

func (e Entry) option() lyrics.Option {
	return lyrics.Option{Title: e.Title, Artist: e.Artist}
}

type file struct {
	Lyrics []Entry `json:"lyrics"`
}

// Catalog serves rounds from an in-memory list of lyric lines grouped by genre.
// Distractors are drawn from the same genre first and topped up from the rest of
// the catalog when a genre is too small.
type Catalog struct {
	byGenre     map[string][]Entry
	genres      []string
	all         []lyrics.Option
	optionCount int

	mu   sync.Mutex
	last map[string]string // genre -> text served last
}

// Default returns the catalog bundled into the binary.
func Default() (*Catalog, error) {
	return Parse(bundled)
}

func Load(path string) (*Catalog, error) {
	log.Info().Str("path", path).Msg("loading lyric catalog")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(f.Lyrics)
}

func New(entries []Entry) (*Catalog, error) {
	valid := lo.Filter(entries, func(e Entry, _ int) bool {
		if strings.TrimSpace(e.Text) == "" || e.Title == "" || e.Artist == "" || e.Genre == "" {
			log.Warn().Str("title", e.Title).Msg("skipping incomplete catalog entry")
			return false
		}
		return true
	})
	all := lo.Uniq(lo.Map(valid, func(e Entry, _ int) lyrics.Option { return e.option() }))
	if len(all) < 2 {
		return nil, errors.New("catalog needs at least two distinct songs")
	}

	c := &Catalog{
		byGenre:     make(map[string][]Entry),
		all:         all,
		optionCount: min(DefaultOptionCount, len(all)),
		last:        make(map[string]string),
	}
	seen := map[string]bool{}
	for _, e := range valid {
		key := strings.ToLower(e.Genre)
		c.byGenre[key] = append(c.byGenre[key], e)
		if !seen[key] {
			seen[key] = true
			c.genres = append(c.genres, e.Genre)
		}
	}
	sort.Strings(c.genres)
	log.Info().Int("entries", len(valid)).Int("genres", len(c.genres)).Msg("lyric catalog ready")
	return c, nil
}

// WithOptionCount changes how many choices each round carries. It is capped by the
// number of distinct songs in the catalog.
func (c *Catalog) WithOptionCount(n int) *Catalog {
	if n >= 2 {
		c.optionCount = min(n, len(c.all))
	}
	return c
}

func (c *Catalog) Genres() []string {
	return append([]string(nil), c.genres...)
}

func (c *Catalog) Next(ctx context.Context, genre string) (lyrics.Round, error) {
	if err := ctx.Err(); err != nil {
		return lyrics.Round{}, err
	}
	key := strings.ToLower(strings.TrimSpace(genre))
	entries, ok := c.byGenre[key]
	if !ok {
		return lyrics.Round{}, fmt.Errorf("%w: %q", lyrics.ErrUnknownGenre, genre)
	}

	pick := c.pick(key, entries)
	answer := pick.option()

	notAnswer := func(o lyrics.Option, _ int) bool { return !o.Equal(answer) }
	pool := lo.Filter(lo.Uniq(lo.Map(entries, func(e Entry, _ int) lyrics.Option { return e.option() })), notAnswer)
	options := lo.Samples(pool, c.optionCount-1)
	if missing := c.optionCount - 1 - len(options); missing > 0 {
		rest := lo.Filter(c.all, func(o lyrics.Option, i int) bool {
			return notAnswer(o, i) && !lo.Contains(options, o)
		})
		options = append(options, lo.Samples(rest, missing)...)
	}
	options = append(options, answer)
	mutable.Shuffle(options)

	return lyrics.Round{
		Text:    pick.Text,
		Title:   pick.Title,
		Artist:  pick.Artist,
		Options: options,
	}, nil
}

// pick avoids serving the same line twice in a row for a genre.
func (c *Catalog) pick(key string, entries []Entry) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	candidates := entries
	if len(entries) > 1 {
		last := c.last[key]
		candidates = lo.Filter(entries, func(e Entry, _ int) bool { return e.Text != last })
	}
	e := lo.Sample(candidates)
	c.last[key] = e.Text
	return e
}
