package study

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/conorfennell/knolnote/internal/clock"
	"github.com/conorfennell/knolnote/internal/domain"
)

// DefaultFailDelay is how long a failed card waits before it is put back
// into the queue.
const DefaultFailDelay = 1500 * time.Millisecond

// RecordUpdater applies a change to the SRS record of a block. It is
// implemented by the document store.
type RecordUpdater interface {
	ModifyBlockSrs(docID, blockID string, fn func(*domain.SrsRecord)) error
}

// State is the lifecycle state of a session.
type State int

const (
	NotStarted State = iota
	Active
	Complete
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Active:
		return "active"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Option configures a Session.
type Option func(*Session)

// WithFailDelay sets the delay before a failed card is requeued.
func WithFailDelay(d time.Duration) Option {
	return func(s *Session) {
		s.failDelay = d
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

// Session is the queue of one study session in spaced or order mode.
//
// Failed cards are requeued after the fail delay. The insertion point is
// computed from the position at the moment the timer fires, not when the
// card was rated, so ratings made in between do not leave the card at a
// stale offset. Starting, restarting or closing the session cancels every
// pending requeue.
type Session struct {
	mu        sync.Mutex
	mode      Mode
	records   RecordUpdater
	clock     clock.Clock
	shuffle   func(n int, swap func(i, j int))
	failDelay time.Duration
	logger    *slog.Logger

	started  bool
	queue    []domain.Flashcard
	original []domain.Flashcard
	position int

	generation uint64
	nextTimer  uint64
	pending    map[uint64]clock.Timer
}

// New creates a session that reports ratings to records.
func New(mode Mode, records RecordUpdater, opts ...Option) *Session {
	s := &Session{
		mode:      mode,
		records:   records,
		clock:     clock.Real(),
		shuffle:   rand.Shuffle,
		failDelay: DefaultFailDelay,
		logger:    slog.Default(),
		pending:   make(map[uint64]clock.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the rating scale of the session.
func (s *Session) Mode() Mode {
	return s.mode
}

// Start replaces the queue with a copy of cards, shuffled if randomize is
// set, and moves to the first card. An empty card set completes at once.
func (s *Session) Start(cards []domain.Flashcard, randomize bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelPending()
	queue := slices.Clone(cards)
	if randomize {
		s.shuffle(len(queue), func(i, j int) {
			queue[i], queue[j] = queue[j], queue[i]
		})
	}
	s.original = queue
	s.queue = slices.Clone(queue)
	s.position = 0
	s.started = true

	s.logger.Debug("study session started", "mode", s.mode, "cards", len(queue), "randomize", randomize)
}

// Current returns the card at the current position. It reports false when
// the session has not started or is complete.
func (s *Session) Current() (domain.Flashcard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.position >= len(s.queue) {
		return domain.Flashcard{}, false
	}
	return s.queue[s.position], true
}

// Rate applies rating r to card and moves to the next card. A fail rating
// counts a lapse, resets the repetition streak and schedules the card to be
// shown again; any other rating counts a repetition. If the record update
// fails the queue is left unchanged.
func (s *Session) Rate(card domain.Flashcard, r Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	if !s.mode.Accepts(r) {
		return fmt.Errorf("%w: %s in %s mode", ErrInvalidRating, r, s.mode)
	}
	if s.position >= len(s.queue) {
		return ErrSessionComplete
	}

	fail := r.IsFail()
	err := s.records.ModifyBlockSrs(card.DocID, card.BlockID, func(rec *domain.SrsRecord) {
		if fail {
			rec.Fail()
		} else {
			rec.Pass()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to record rating for card %s: %w", card.ID, err)
	}

	s.position++
	if fail {
		requeued := card
		requeued.Lapses++
		requeued.Repetitions = 0
		requeued.Status = domain.StatusNew
		s.scheduleRequeue(requeued)
	}

	s.logger.Debug("card rated", "card", card.ID, "rating", r, "label", r.Label(), "position", s.position)
	return nil
}

// Restart restores the queue as it was when the session started.
func (s *Session) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelPending()
	s.queue = slices.Clone(s.original)
	s.position = 0
}

// Close ends the session and cancels pending requeues.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelPending()
	s.started = false
	s.queue = nil
	s.original = nil
	s.position = 0
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !s.started:
		return NotStarted
	case s.position >= len(s.queue):
		return Complete
	}
	return Active
}

// Progress returns the current position and the queue length.
func (s *Session) Progress() (position, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position, len(s.queue)
}

// Queue returns a copy of the live queue.
func (s *Session) Queue() []domain.Flashcard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.queue)
}

// PendingRequeues returns the number of failed cards waiting to be requeued.
func (s *Session) PendingRequeues() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// scheduleRequeue must be called with s.mu held.
func (s *Session) scheduleRequeue(card domain.Flashcard) {
	gen := s.generation
	s.nextTimer++
	id := s.nextTimer
	s.pending[id] = s.clock.AfterFunc(s.failDelay, func() {
		s.requeue(gen, id, card)
	})
}

func (s *Session) requeue(gen, id uint64, card domain.Flashcard) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}
	delete(s.pending, id)

	if s.position < len(s.queue) {
		s.queue = slices.Insert(s.queue, s.position+1, card)
	} else {
		s.queue = append(s.queue, card)
	}
	s.logger.Debug("failed card requeued", "card", card.ID, "position", s.position, "queue", len(s.queue))
}

// cancelPending must be called with s.mu held.
func (s *Session) cancelPending() {
	s.generation++
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}
