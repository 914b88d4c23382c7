// Package swipe implements the browse-and-sort flashcard mode. Cards are
// sorted into good and bad piles without touching their SRS records; the bad
// pile can be studied again. An optional auto-play chain shows the front,
// then the back, then sorts the card as good and moves on.
package swipe

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/conorfennell/knolnote/internal/clock"
	"github.com/conorfennell/knolnote/internal/domain"
	"github.com/conorfennell/knolnote/internal/knol"
)

const (
	DefaultFrontDelay = 3 * time.Second
	DefaultBackDelay  = 2 * time.Second
)

// ErrSessionComplete is returned when deciding past the end of the queue.
var ErrSessionComplete = errors.New("swipe: session complete")

// Direction is the outcome of a swipe.
type Direction int

const (
	Good Direction = iota + 1
	Bad
)

func (d Direction) String() string {
	switch d {
	case Good:
		return "good"
	case Bad:
		return "bad"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	if d != Good && d != Bad {
		return nil, fmt.Errorf("swipe: invalid direction %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "good":
		*d = Good
	case "bad":
		*d = Bad
	default:
		return fmt.Errorf("swipe: invalid direction %q", text)
	}
	return nil
}

// Phase is which side of the current card is shown.
type Phase int

const (
	Front Phase = iota
	Back
)

func (p Phase) String() string {
	if p == Back {
		return "back"
	}
	return "front"
}

// Option configures a Session.
type Option func(*Session)

// WithDelays sets how long auto-play shows the front and the back.
func WithDelays(front, back time.Duration) Option {
	return func(s *Session) {
		s.frontDelay = front
		s.backDelay = back
	}
}

// WithClock replaces the real clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithRand makes shuffling deterministic.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) {
		s.shuffle = r.Shuffle
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// Session is one browse-and-sort session.
type Session struct {
	mu         sync.Mutex
	clock      clock.Clock
	shuffle    func(n int, swap func(i, j int))
	frontDelay time.Duration
	backDelay  time.Duration
	logger     *slog.Logger

	queue    []domain.Flashcard
	original []domain.Flashcard
	position int
	missed   map[string]struct{}
	term     string
	revealed bool

	autoPlay   bool
	generation uint64
	timer      clock.Timer
}

// New creates an empty session.
func New(opts ...Option) *Session {
	s := &Session{
		clock:      clock.Real(),
		shuffle:    rand.Shuffle,
		frontDelay: DefaultFrontDelay,
		backDelay:  DefaultBackDelay,
		logger:     slog.Default(),
		missed:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start replaces the card set.
func (s *Session) Start(cards []domain.Flashcard) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAutoPlay()
	s.original = slices.Clone(cards)
	s.queue = slices.Clone(cards)
	s.missed = make(map[string]struct{})
	s.term = ""
	s.reset()
}

// Current returns the card on screen, or false when the queue is done.
func (s *Session) Current() (domain.Flashcard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position >= len(s.queue) {
		return domain.Flashcard{}, false
	}
	return s.queue[s.position], true
}

// Decide sorts the current card and moves to the next one. Bad cards are
// remembered as missed. During auto-play the chain restarts on the next card.
func (s *Session) Decide(d Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decide(d)
}

// Flip toggles between front and back. Flipping by hand stops auto-play.
func (s *Session) Flip() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.autoPlay {
		s.stopAutoPlay()
	}
	s.revealed = !s.revealed
}

// Revealed reports whether the back of the current card is shown.
func (s *Session) Revealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealed
}

// Phase returns the side of the current card that is shown.
func (s *Session) Phase() Phase {
	if s.Revealed() {
		return Back
	}
	return Front
}

// Shuffle reorders the current queue and starts it from the top.
func (s *Session) Shuffle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAutoPlay()
	s.shuffle(len(s.queue), func(i, j int) {
		s.queue[i], s.queue[j] = s.queue[j], s.queue[i]
	})
	s.reset()
}

// Filter rebuilds the queue from the original cards whose front or back
// contains term, ignoring case. A blank term restores every card in the
// original order; a previous shuffle is not kept.
func (s *Session) Filter(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAutoPlay()
	s.term = term
	var queue []domain.Flashcard
	for _, c := range s.original {
		if knol.Contains(c.Front, term) || knol.Contains(c.Back, term) {
			queue = append(queue, c)
		}
	}
	s.queue = queue
	s.reset()
}

// Term returns the active filter term.
func (s *Session) Term() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.term
}

// RestartAll starts over with every original card and forgets missed cards.
func (s *Session) RestartAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAutoPlay()
	s.queue = slices.Clone(s.original)
	s.missed = make(map[string]struct{})
	s.term = ""
	s.reset()
}

// RestartMissed starts over with only the missed cards, in their original
// order, and clears the missed set.
func (s *Session) RestartMissed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAutoPlay()
	var queue []domain.Flashcard
	for _, c := range s.original {
		if _, ok := s.missed[c.ID]; ok {
			queue = append(queue, c)
		}
	}
	s.queue = queue
	s.missed = make(map[string]struct{})
	s.term = ""
	s.reset()
}

// Missed returns the ids of the missed cards in original order.
func (s *Session) Missed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, c := range s.original {
		if _, ok := s.missed[c.ID]; ok {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Progress returns the current position and the queue length.
func (s *Session) Progress() (position, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position, len(s.queue)
}

// StartAutoPlay begins the front/back/advance chain on the current card. It
// reports false when there is no card to play.
func (s *Session) StartAutoPlay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position >= len(s.queue) {
		return false
	}
	s.autoPlay = true
	s.armFront()
	s.logger.Debug("auto-play started", "position", s.position)
	return true
}

// StopAutoPlay cancels the chain.
func (s *Session) StopAutoPlay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAutoPlay()
}

// AutoPlaying reports whether the chain is running.
func (s *Session) AutoPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoPlay
}

// Close stops auto-play and drops the cards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAutoPlay()
	s.queue = nil
	s.original = nil
	s.missed = make(map[string]struct{})
	s.reset()
}

func (s *Session) decide(d Direction) error {
	if s.position >= len(s.queue) {
		return ErrSessionComplete
	}
	if d == Bad {
		s.missed[s.queue[s.position].ID] = struct{}{}
	}
	s.position++
	s.revealed = false

	if s.autoPlay {
		if s.position < len(s.queue) {
			s.armFront()
		} else {
			s.stopAutoPlay()
		}
	}
	return nil
}

func (s *Session) reset() {
	s.position = 0
	s.revealed = false
}

// armFront shows the front and schedules the back. Must hold s.mu.
func (s *Session) armFront() {
	s.cancelTimer()
	s.revealed = false
	gen := s.generation
	s.timer = s.clock.AfterFunc(s.frontDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.generation {
			return
		}
		s.revealed = true
		s.timer = s.clock.AfterFunc(s.backDelay, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if gen != s.generation {
				return
			}
			s.timer = nil
			_ = s.decide(Good)
		})
	})
}

func (s *Session) stopAutoPlay() {
	s.cancelTimer()
	s.autoPlay = false
}

func (s *Session) cancelTimer() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
