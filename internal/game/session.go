package game

import (
	"sync"
)

// Session is the authoritative score/time store for one game. It is created idle,
// started with StartGame and only mutated through the controller that owns it.
type Session struct {
	mu sync.Mutex

	config     GameConfig
	roundIndex int
	score      int
	timeLeft   int
	started    bool
	result     *GameResult

	subs   map[int]func(SessionState)
	nextID int
}

func NewSession() *Session {
	return &Session{subs: make(map[int]func(SessionState))}
}

// StartGame begins a session with cfg. It is a no-op returning ErrSessionActive while
// a session is running; use RestartGame to replace a running session.
func (s *Session) StartGame(cfg GameConfig) error {
	return s.start(cfg, false)
}

func (s *Session) RestartGame(cfg GameConfig) error {
	return s.start(cfg, true)
}

func (s *Session) start(cfg GameConfig, restart bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.started && !restart {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.config = cfg
	s.roundIndex = 0
	s.score = 0
	s.timeLeft = cfg.Duration.Seconds()
	s.started = true
	s.result = nil
	st, subs := s.snapshotLocked()
	s.mu.Unlock()
	notify(subs, st)
	return nil
}

// Tick removes one second from the clock and reports whether it just reached zero.
// Terminating the session on expiry is left to the caller so that it can settle the
// pending round first.
func (s *Session) Tick() (SessionState, bool) {
	s.mu.Lock()
	if !s.started || s.timeLeft == 0 {
		st := s.stateLocked()
		s.mu.Unlock()
		return st, false
	}
	s.timeLeft--
	expired := s.timeLeft == 0
	st, subs := s.snapshotLocked()
	s.mu.Unlock()
	notify(subs, st)
	return st, expired
}

// RecordAnswer completes the current round. The session finishes once MaxRounds
// answers are in, winning when the score reaches the configured passing score.
func (s *Session) RecordAnswer(correct bool) (SessionState, error) {
	s.mu.Lock()
	if !s.started {
		st := s.stateLocked()
		s.mu.Unlock()
		return st, ErrSessionNotStarted
	}
	s.roundIndex++
	if correct {
		s.score++
	}
	if s.roundIndex >= s.config.MaxRounds {
		s.finishLocked(s.score >= s.config.PassingScore, ReasonCompleted)
	}
	st, subs := s.snapshotLocked()
	s.mu.Unlock()
	notify(subs, st)
	return st, nil
}

// Expire ends a running session as a loss because its clock ran out.
func (s *Session) Expire() SessionState {
	s.mu.Lock()
	if s.started {
		s.finishLocked(false, ReasonTimeout)
	}
	st, subs := s.snapshotLocked()
	s.mu.Unlock()
	notify(subs, st)
	return st
}

// ResetClock refills the countdown for a new round.
func (s *Session) ResetClock() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.timeLeft = s.config.Duration.Seconds()
	st, subs := s.snapshotLocked()
	s.mu.Unlock()
	notify(subs, st)
}

func (s *Session) Reset() {
	s.mu.Lock()
	s.config = GameConfig{}
	s.roundIndex = 0
	s.score = 0
	s.timeLeft = 0
	s.started = false
	s.result = nil
	st, subs := s.snapshotLocked()
	s.mu.Unlock()
	notify(subs, st)
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Subscribe registers fn to receive a snapshot after every mutation. Callbacks run
// synchronously on the mutating goroutine and must not call back into the controller.
func (s *Session) Subscribe(fn func(SessionState)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Session) finishLocked(win bool, reason string) {
	s.started = false
	s.result = &GameResult{IsWin: win, Score: s.score, MaxRounds: s.config.MaxRounds, Reason: reason}
}

func (s *Session) stateLocked() SessionState {
	st := SessionState{
		Config:        s.config,
		RoundIndex:    s.roundIndex,
		MaxRounds:     s.config.MaxRounds,
		Score:         s.score,
		TimeLeft:      s.timeLeft,
		IsGameStarted: s.started,
	}
	if s.result != nil {
		r := *s.result
		st.Result = &r
	}
	return st
}

func (s *Session) snapshotLocked() (SessionState, []func(SessionState)) {
	subs := make([]func(SessionState), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return s.stateLocked(), subs
}

func notify[T any](subs []func(T), v T) {
	for _, fn := range subs {
		fn(v)
	}
}
