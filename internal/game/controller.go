package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kiliankoe/lyricsflip/internal/lyrics"
	"github.com/kiliankoe/lyricsflip/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/samber/lo/mutable"
)

type Options struct {
	GameID       string
	RevealDelay  time.Duration // dwell between answer reveal and the card flip
	TickInterval time.Duration
	FetchTimeout time.Duration
	Metrics      *metrics.Metrics

	// Schedule runs f after d. Defaults to time.AfterFunc.
	Schedule func(d time.Duration, f func())

	// OnFinish receives the final state once per finished session.
	OnFinish func(RoundState)
}

type round struct {
	lyric lyrics.Round

	// answered is the single commit gate shared by the selection and timeout paths.
	answered atomic.Bool

	selected      *lyrics.Option
	selectedIndex int
	correct       *lyrics.Option
	timedOut      bool
}

// Controller drives one session round by round: it loads lyrics, accepts the first
// answer of each round, runs the countdown and publishes the final result.
//
// Every round fetch is stamped with the generation that requested it. Reset, Stop
// and each flip to a new round bump the generation, so late fetch results for an
// abandoned round are dropped instead of overwriting newer state.
type Controller struct {
	session  *Session
	provider lyrics.Provider
	genre    string
	opts     Options
	log      zerolog.Logger

	mu        sync.Mutex
	phase     Phase
	gen       uint64
	current   *round
	next      *lyrics.Round
	flipped   bool
	result    *GameResult
	failure   *Failure
	ctx       context.Context
	cancel    context.CancelFunc
	runCancel context.CancelFunc

	subs   map[int]func(RoundState)
	nextID int
}

// NewController binds a controller to session. genre is used when the session
// config does not name one.
func NewController(session *Session, provider lyrics.Provider, genre string, opts Options) *Controller {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Schedule == nil {
		opts.Schedule = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		session:  session,
		provider: provider,
		genre:    genre,
		opts:     opts,
		log:      log.With().Str("game", opts.GameID).Logger(),
		phase:    PhaseIdle,
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[int]func(RoundState)),
	}
}

// StartGame starts the session and loads its first round. It returns
// ErrSessionActive without side effects while a session is running.
func (c *Controller) StartGame(ctx context.Context, cfg GameConfig) error {
	if err := c.checkGenre(cfg); err != nil {
		return err
	}
	if err := c.session.StartGame(cfg); err != nil {
		return err
	}
	c.opts.Metrics.GameStarted()
	c.log.Info().Str("genre", cfg.Genre).Str("difficulty", string(cfg.Difficulty)).Int("maxRounds", cfg.MaxRounds).Msg("game started")
	return c.Mount(ctx)
}

// RestartGame discards any running session and starts a new one with cfg.
func (c *Controller) RestartGame(ctx context.Context, cfg GameConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := c.checkGenre(cfg); err != nil {
		return err
	}
	c.mu.Lock()
	c.bumpLocked()
	c.mu.Unlock()
	if err := c.session.RestartGame(cfg); err != nil {
		return err
	}
	c.opts.Metrics.GameStarted()
	c.log.Info().Str("genre", cfg.Genre).Msg("game restarted")
	return c.Mount(ctx)
}

// Mount loads a fresh round for the running session, keeping its score, and
// starts the countdown if it is not running. The caller's ctx only contributes
// values; the load is cancelled by Stop or Reset.
func (c *Controller) Mount(ctx context.Context) error {
	if !c.session.State().IsGameStarted {
		return ErrSessionNotStarted
	}
	c.mu.Lock()
	c.startLocked(context.WithoutCancel(ctx))
	c.bumpLocked()
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.phase = PhaseLoading
	c.flipped = false
	c.result = nil
	gen, fctx := c.gen, c.ctx
	st, subs := c.snapshotLocked()
	c.mu.Unlock()
	notify(subs, st)
	return c.load(fctx, gen)
}

// SelectOption commits the player's answer for the active round. Only the first
// call of a round is accepted, and only for one of the round's options; every
// other call is a no-op that returns false.
func (c *Controller) SelectOption(option lyrics.Option, index int) bool {
	c.mu.Lock()
	r := c.current
	if c.phase != PhaseRoundActive || r == nil {
		c.mu.Unlock()
		return false
	}
	if !lo.ContainsBy(r.lyric.Options, option.Equal) {
		c.mu.Unlock()
		c.log.Warn().Str("title", option.Title).Msg("selected option is not part of the round")
		return false
	}
	if !r.answered.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return false
	}
	answer := r.lyric.Answer()
	selected := option
	r.selected = &selected
	r.selectedIndex = index
	r.correct = &answer
	correct := option.Equal(answer)
	if _, err := c.session.RecordAnswer(correct); err != nil {
		c.log.Warn().Err(err).Msg("answer not recorded")
	}
	c.phase = PhaseRevealed
	gen := c.gen
	st, subs := c.snapshotLocked()
	c.mu.Unlock()

	notify(subs, st)
	c.opts.Metrics.RoundAnswered(lo.Ternary(correct, "correct", "incorrect"))
	c.log.Info().Bool("correct", correct).Int("round", st.Session.RoundIndex).Int("score", st.Session.Score).Msg("answer committed")
	c.opts.Schedule(c.opts.RevealDelay, func() { c.advance(gen) })
	return true
}

// Tick advances the countdown by one step. When the clock runs out on an
// unanswered round the round is settled as incorrect; under the session timer
// scope the session then ends as a loss.
func (c *Controller) Tick() {
	c.mu.Lock()
	scope := c.session.State().Config.TimerScope
	running := c.phase == PhaseRoundActive || (scope == TimerScopeSession && c.phase == PhaseRevealed)
	if !running {
		c.mu.Unlock()
		return
	}
	_, expired := c.session.Tick()
	if !expired {
		st, subs := c.snapshotLocked()
		c.mu.Unlock()
		notify(subs, st)
		return
	}

	timedOut := false
	if r := c.current; c.phase == PhaseRoundActive && r != nil && r.answered.CompareAndSwap(false, true) {
		answer := r.lyric.Answer()
		r.correct = &answer
		r.timedOut = true
		if _, err := c.session.RecordAnswer(false); err != nil {
			c.log.Warn().Err(err).Msg("timeout not recorded")
		}
		c.phase = PhaseRevealed
		timedOut = true
	}
	finished := false
	if scope == TimerScopeSession {
		sess := c.session.Expire()
		c.finishLocked(sess.Result)
		finished = true
	}
	gen := c.gen
	st, subs := c.snapshotLocked()
	c.mu.Unlock()

	notify(subs, st)
	if timedOut {
		c.opts.Metrics.RoundAnswered("timeout")
		c.log.Info().Int("round", st.Session.RoundIndex).Msg("round timed out")
	}
	if finished {
		c.published(st)
		return
	}
	if timedOut {
		c.opts.Schedule(c.opts.RevealDelay, func() { c.advance(gen) })
	}
}

// RetryRound reloads the current round after a recoverable provider failure.
// Score and round counter are untouched.
func (c *Controller) RetryRound(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseFailed || c.failure == nil || !c.failure.Recoverable {
		c.mu.Unlock()
		return ErrNotRecoverable
	}
	c.bumpLocked()
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.phase = PhaseLoading
	gen, fctx := c.gen, c.ctx
	st, subs := c.snapshotLocked()
	c.mu.Unlock()
	notify(subs, st)
	c.log.Info().Msg("retrying round")
	return c.load(fctx, gen)
}

// Reset abandons the in-flight round and returns the session to its defaults.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.bumpLocked()
	c.phase = PhaseIdle
	c.flipped = false
	c.result = nil
	c.session.Reset()
	st, subs := c.snapshotLocked()
	c.mu.Unlock()
	notify(subs, st)
	c.log.Info().Msg("game reset")
}

// Stop detaches the controller from its view: in-flight fetches and the ticker
// are cancelled and subscribers are dropped. The session keeps its score, so a
// later Mount continues the game.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumpLocked()
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
	if c.phase != PhaseFinished {
		c.phase = PhaseIdle
	}
	c.subs = make(map[int]func(RoundState))
}

// Start ticks the countdown every TickInterval until Stop is called or ctx is
// done. It does nothing while the countdown is already running.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLocked(ctx)
}

func (c *Controller) startLocked(ctx context.Context) {
	if c.runCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.runCancel = cancel
	go c.loop(ctx)
}

func (c *Controller) loop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

func (c *Controller) State() RoundState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Subscribe registers fn to receive a snapshot after every change. Callbacks run
// on the goroutine that made the change, after the controller lock is released.
func (c *Controller) Subscribe(fn func(RoundState)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// advance runs after the reveal dwell: it either publishes the result or flips
// the card to the pre-fetched lyric.
func (c *Controller) advance(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.phase != PhaseRevealed {
		c.mu.Unlock()
		return
	}
	sess := c.session.State()
	if !sess.IsGameStarted {
		c.finishLocked(sess.Result)
		st, subs := c.snapshotLocked()
		c.mu.Unlock()
		notify(subs, st)
		c.published(st)
		return
	}

	c.flipped = !c.flipped
	c.gen++
	gen, fctx := c.gen, c.ctx
	if c.next == nil {
		c.current = nil
		c.phase = PhaseLoading
		st, subs := c.snapshotLocked()
		c.mu.Unlock()
		notify(subs, st)
		_ = c.load(fctx, gen)
		return
	}
	c.current = &round{lyric: *c.next, selectedIndex: -1}
	c.next = nil
	c.phase = PhaseRoundActive
	if sess.Config.TimerScope == TimerScopeRound {
		c.session.ResetClock()
	}
	genre := c.genreLocked()
	st, subs := c.snapshotLocked()
	c.mu.Unlock()
	notify(subs, st)

	c.prefetch(fctx, gen, genre)
}

// load fetches the current round and pre-fetches the one after it.
func (c *Controller) load(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	genre := c.genreLocked()
	c.mu.Unlock()

	cur, err := c.fetch(ctx, genre)
	if err != nil {
		return c.fail(gen, err)
	}
	if !c.isCurrent(gen) {
		c.discard(gen)
		return nil
	}
	nxt, nerr := c.fetch(ctx, genre)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.discard(gen)
		return nil
	}
	c.current = &round{lyric: cur, selectedIndex: -1}
	c.next = nil
	if nerr == nil {
		c.next = &nxt
	} else {
		c.log.Warn().Err(nerr).Msg("next lyric not pre-fetched")
	}
	c.phase = PhaseRoundActive
	c.failure = nil
	if c.session.State().Config.TimerScope == TimerScopeRound {
		c.session.ResetClock()
	}
	st, subs := c.snapshotLocked()
	c.mu.Unlock()
	notify(subs, st)
	return nil
}

func (c *Controller) prefetch(ctx context.Context, gen uint64, genre string) {
	nxt, err := c.fetch(ctx, genre)
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.discard(gen)
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("next lyric not pre-fetched")
		return
	}
	c.next = &nxt
	st, subs := c.snapshotLocked()
	c.mu.Unlock()
	notify(subs, st)
}

// fetch asks the provider for a round, retrying once, then validates it and
// shuffles its options. The order chosen here is kept for the whole round.
func (c *Controller) fetch(ctx context.Context, genre string) (lyrics.Round, error) {
	r, err := c.fetchOnce(ctx, genre)
	if err != nil && ctx.Err() == nil && !errors.Is(err, lyrics.ErrUnknownGenre) {
		c.log.Warn().Err(err).Str("genre", genre).Msg("lyric fetch failed, retrying")
		r, err = c.fetchOnce(ctx, genre)
	}
	if errors.Is(err, lyrics.ErrUnknownGenre) {
		return lyrics.Round{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err != nil {
		if ctx.Err() == nil {
			c.opts.Metrics.FetchFailed()
		}
		return lyrics.Round{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if err := validateRound(r); err != nil {
		return lyrics.Round{}, err
	}
	r = r.Clone()
	mutable.Shuffle(r.Options)
	return r, nil
}

func (c *Controller) fetchOnce(ctx context.Context, genre string) (lyrics.Round, error) {
	if c.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.FetchTimeout)
		defer cancel()
	}
	return c.provider.Next(ctx, genre)
}

func validateRound(r lyrics.Round) error {
	if len(r.Options) == 0 {
		return fmt.Errorf("%w: no options", ErrDataIntegrity)
	}
	if len(lo.Uniq(r.Options)) != len(r.Options) {
		return fmt.Errorf("%w: duplicate options", ErrDataIntegrity)
	}
	if n := lo.CountBy(r.Options, r.Answer().Equal); n != 1 {
		return fmt.Errorf("%w: answer %q by %q appears %d times", ErrDataIntegrity, r.Title, r.Artist, n)
	}
	return nil
}

func (c *Controller) fail(gen uint64, err error) error {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.discard(gen)
		return nil
	}
	c.phase = PhaseFailed
	c.failure = failureFor(err)
	c.current = nil
	c.next = nil
	st, subs := c.snapshotLocked()
	c.mu.Unlock()
	notify(subs, st)
	c.log.Error().Err(err).Bool("recoverable", st.Failure.Recoverable).Msg("round failed")
	return err
}

func (c *Controller) discard(gen uint64) {
	c.opts.Metrics.StaleFetch()
	c.log.Debug().Err(ErrStaleFetch).Uint64("generation", gen).Msg("discarding lyric fetch")
}

func (c *Controller) published(st RoundState) {
	res := st.GameResult
	if res == nil {
		return
	}
	c.opts.Metrics.GameFinished(res.IsWin)
	c.log.Info().Bool("win", res.IsWin).Int("score", res.Score).Int("maxRounds", res.MaxRounds).Str("reason", res.Reason).Msg("game finished")
	if c.opts.OnFinish != nil {
		c.opts.OnFinish(st)
	}
}

// checkGenre rejects a genre the provider does not list. Providers without a
// genre list report unknown genres on the first fetch instead.
func (c *Controller) checkGenre(cfg GameConfig) error {
	gl, ok := c.provider.(lyrics.GenreLister)
	if !ok {
		return nil
	}
	genre := strings.TrimSpace(cfg.Genre)
	if genre == "" {
		genre = c.genre
	}
	if !lo.ContainsBy(gl.Genres(), func(g string) bool { return strings.EqualFold(g, genre) }) {
		return fmt.Errorf("%w: unknown genre %q", ErrInvalidConfig, genre)
	}
	return nil
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

// bumpLocked starts a new generation and drops everything tied to the old one.
func (c *Controller) bumpLocked() {
	c.gen++
	c.cancel()
	c.current = nil
	c.next = nil
	c.failure = nil
}

func (c *Controller) finishLocked(res *GameResult) {
	c.phase = PhaseFinished
	c.next = nil
	c.cancel()
	if res != nil {
		r := *res
		c.result = &r
	}
}

func (c *Controller) genreLocked() string {
	if g := c.session.State().Config.Genre; g != "" {
		return g
	}
	return c.genre
}

func (c *Controller) stateLocked() RoundState {
	st := RoundState{
		Phase:         c.phase,
		Generation:    c.gen,
		SelectedIndex: -1,
		IsCardFlipped: c.flipped,
		Session:       c.session.State(),
	}
	if r := c.current; r != nil {
		lyric := r.lyric.Clone()
		st.CurrentLyric = &lyric
		st.SelectedIndex = r.selectedIndex
		st.TimedOut = r.timedOut
		if r.selected != nil {
			o := *r.selected
			st.SelectedOption = &o
		}
		if r.correct != nil {
			o := *r.correct
			st.CorrectOption = &o
		}
	}
	if c.next != nil {
		next := c.next.Clone()
		st.NextLyric = &next
	}
	if c.result != nil {
		res := *c.result
		st.GameResult = &res
	}
	if c.failure != nil {
		f := *c.failure
		st.Failure = &f
	}
	return st
}

func (c *Controller) snapshotLocked() (RoundState, []func(RoundState)) {
	subs := make([]func(RoundState), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return c.stateLocked(), subs
}
