package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/conorfennell/knolnote/internal/ai"
	"github.com/conorfennell/knolnote/internal/clock"
	"github.com/conorfennell/knolnote/internal/domain"
	"github.com/conorfennell/knolnote/internal/extract"
	"github.com/conorfennell/knolnote/internal/knol"
	"github.com/conorfennell/knolnote/internal/repository"
	"github.com/conorfennell/knolnote/internal/storage"
	"github.com/conorfennell/knolnote/internal/store"
	"github.com/conorfennell/knolnote/internal/study"
	"github.com/conorfennell/knolnote/internal/swipe"
	knolsync "github.com/conorfennell/knolnote/internal/sync"
)

var (
	errNoSession   = errors.New("web: no session")
	errUnavailable = errors.New("web: feature not configured")
	errCardChanged = errors.New("web: card is no longer current")
)

// SourceManager adds, removes and syncs sources. It is implemented by the
// sync package.
type SourceManager interface {
	AddSource(path string) (storage.Source, error)
	RemoveSource(id int64) error
	Run(ctx context.Context, source storage.Source) (knolsync.Result, error)
	RunAll(ctx context.Context) ([]knolsync.Result, error)
}

// SourceLister lists the registered sources.
type SourceLister interface {
	GetAllSources() ([]storage.Source, error)
}

// Options configures a Server. Zero values select defaults, and nil
// Sources, Lister or Generator turn the matching routes off.
type Options struct {
	LeechThreshold int
	FailDelay      time.Duration
	FrontDelay     time.Duration
	BackDelay      time.Duration
	Clock          clock.Clock
	Sources        SourceManager
	Lister         SourceLister
	Generator      ai.Generator
	Logger         *slog.Logger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	store  *store.Store
	opts   Options
	router *http.ServeMux
	logger *slog.Logger

	mu    sync.Mutex
	study *study.Session
	swipe *swipe.Session
}

// NewServer creates and configures a new server.
func NewServer(st *store.Store, opts Options) *Server {
	if opts.LeechThreshold <= 0 {
		opts.LeechThreshold = repository.DefaultLeechThreshold
	}
	if opts.FailDelay <= 0 {
		opts.FailDelay = study.DefaultFailDelay
	}
	if opts.FrontDelay <= 0 {
		opts.FrontDelay = swipe.DefaultFrontDelay
	}
	if opts.BackDelay <= 0 {
		opts.BackDelay = swipe.DefaultBackDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		store:  st,
		opts:   opts,
		router: http.NewServeMux(),
		logger: opts.Logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close ends any running sessions.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.study != nil {
		s.study.Close()
		s.study = nil
	}
	if s.swipe != nil {
		s.swipe.Close()
		s.swipe = nil
	}
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /api/cards", s.handleGetCards())
	s.router.HandleFunc("POST /api/blocks/{doc}/{block}/toggle", s.handleToggleBlock())

	s.router.HandleFunc("POST /api/study", s.handleStartStudy())
	s.router.HandleFunc("GET /api/study/current", s.handleStudyCurrent())
	s.router.HandleFunc("POST /api/study/rate", s.handleStudyRate())
	s.router.HandleFunc("POST /api/study/restart", s.handleStudyRestart())
	s.router.HandleFunc("DELETE /api/study", s.handleStudyClose())

	s.router.HandleFunc("POST /api/swipe", s.handleStartSwipe())
	s.router.HandleFunc("GET /api/swipe/current", s.handleSwipeCurrent())
	s.router.HandleFunc("POST /api/swipe/decide", s.handleSwipeDecide())
	s.router.HandleFunc("POST /api/swipe/flip", s.withSwipe(func(sw *swipe.Session, _ *http.Request) error {
		sw.Flip()
		return nil
	}))
	s.router.HandleFunc("POST /api/swipe/shuffle", s.withSwipe(func(sw *swipe.Session, _ *http.Request) error {
		sw.Shuffle()
		return nil
	}))
	s.router.HandleFunc("POST /api/swipe/filter", s.withSwipe(func(sw *swipe.Session, r *http.Request) error {
		var req struct {
			Term string `json:"term"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		sw.Filter(req.Term)
		return nil
	}))
	s.router.HandleFunc("POST /api/swipe/restart", s.withSwipe(func(sw *swipe.Session, r *http.Request) error {
		var req struct {
			Missed bool `json:"missed"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		if req.Missed {
			sw.RestartMissed()
		} else {
			sw.RestartAll()
		}
		return nil
	}))
	s.router.HandleFunc("POST /api/swipe/autoplay", s.withSwipe(func(sw *swipe.Session, r *http.Request) error {
		var req struct {
			On bool `json:"on"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		if req.On {
			sw.StartAutoPlay()
		} else {
			sw.StopAutoPlay()
		}
		return nil
	}))

	s.router.HandleFunc("POST /api/generate", s.handleGenerate())

	s.router.HandleFunc("GET /api/sources", s.handleGetSources())
	s.router.HandleFunc("POST /api/sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /api/sync", s.handlePostSync())
}

// cardView is a card as the client shows it. Cloze fronts are masked.
type cardView struct {
	domain.Flashcard
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}

func viewOf(c domain.Flashcard) cardView {
	v := cardView{Flashcard: c, Prompt: c.Front, Answer: c.Back}
	if c.Type == domain.Cloze {
		v.Prompt = extract.Mask(c.Front)
		v.Answer = extract.Reveal(c.Back)
	}
	return v
}

func viewsOf(cards []domain.Flashcard) []cardView {
	views := make([]cardView, 0, len(cards))
	for _, c := range cards {
		views = append(views, viewOf(c))
	}
	return views
}

// selection names the cards a session starts with: explicit ids win over a
// bucket, and q narrows either.
type selection struct {
	Bucket repository.BucketName `json:"bucket"`
	IDs    []string              `json:"ids"`
	Query  string                `json:"q"`
}

func (s *Server) selectCards(sel selection) ([]domain.Flashcard, error) {
	docs := s.store.Get()
	if len(sel.IDs) > 0 {
		return repository.Filter(repository.DeriveSubset(docs, sel.IDs), sel.Query), nil
	}
	buckets := repository.Classify(repository.DeriveAll(docs), s.opts.LeechThreshold, sel.Query)
	return buckets.Get(sel.Bucket)
}

// handleGetCards returns the bucket counts and the cards of one bucket.
func (s *Server) handleGetCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		buckets := repository.Classify(repository.DeriveAll(s.store.Get()), s.opts.LeechThreshold, q.Get("q"))
		cards, err := buckets.Get(repository.BucketName(q.Get("bucket")))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"counts": buckets.Counts(),
			"cards":  viewsOf(cards),
		})
	}
}

// handleToggleBlock enables or disables every card of a block.
func (s *Server) handleToggleBlock() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID, blockID := r.PathValue("doc"), r.PathValue("block")
		if err := s.store.ToggleDisabled(docID, blockID); err != nil {
			s.writeStoreError(w, err)
			return
		}
		doc, err := s.store.Document(docID)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		i := doc.BlockIndex(blockID)
		writeJSON(w, http.StatusOK, doc.Blocks[i].Record())
	}
}

type studyView struct {
	Mode     study.Mode   `json:"mode"`
	State    string       `json:"state"`
	Position int          `json:"position"`
	Total    int          `json:"total"`
	Card     *cardView    `json:"card,omitempty"`
	Ratings  []ratingView `json:"ratings"`
}

type ratingView struct {
	Rating study.Rating `json:"rating"`
	Label  string       `json:"label"`
}

func studyViewOf(sess *study.Session) studyView {
	pos, total := sess.Progress()
	v := studyView{
		Mode:     sess.Mode(),
		State:    sess.State().String(),
		Position: pos,
		Total:    total,
	}
	if c, ok := sess.Current(); ok {
		cv := viewOf(c)
		v.Card = &cv
	}
	for _, r := range sess.Mode().Ratings() {
		v.Ratings = append(v.Ratings, ratingView{Rating: r, Label: r.Label()})
	}
	return v
}

// handleStartStudy replaces the study session.
func (s *Server) handleStartStudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			selection
			Mode      study.Mode `json:"mode"`
			Randomize bool       `json:"randomize"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if !req.Mode.IsValid() {
			writeError(w, http.StatusBadRequest, study.ErrInvalidMode)
			return
		}
		cards, err := s.selectCards(req.selection)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		sess := study.New(req.Mode, s.store,
			study.WithFailDelay(s.opts.FailDelay),
			study.WithClock(s.opts.Clock),
			study.WithLogger(s.logger),
		)
		sess.Start(repository.Studyable(cards), req.Randomize)

		s.mu.Lock()
		if s.study != nil {
			s.study.Close()
		}
		s.study = sess
		s.mu.Unlock()

		s.logger.Info("study session started", "mode", req.Mode, "cards", len(cards))
		writeJSON(w, http.StatusCreated, studyViewOf(sess))
	}
}

func (s *Server) currentStudy() *study.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.study
}

func (s *Server) handleStudyCurrent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.currentStudy()
		if sess == nil {
			writeError(w, http.StatusNotFound, errNoSession)
			return
		}
		writeJSON(w, http.StatusOK, studyViewOf(sess))
	}
}

// handleStudyRate rates the current card. The request names the card so a
// stale client cannot rate a different card than the one it showed.
func (s *Server) handleStudyRate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.currentStudy()
		if sess == nil {
			writeError(w, http.StatusNotFound, errNoSession)
			return
		}
		var req struct {
			CardID string       `json:"card_id"`
			Rating study.Rating `json:"rating"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		card, ok := sess.Current()
		if !ok {
			writeError(w, http.StatusConflict, study.ErrSessionComplete)
			return
		}
		if req.CardID != "" && req.CardID != card.ID {
			writeError(w, http.StatusConflict, errCardChanged)
			return
		}

		if err := sess.Rate(card, req.Rating); err != nil {
			switch {
			case errors.Is(err, study.ErrInvalidRating):
				writeError(w, http.StatusBadRequest, err)
			case errors.Is(err, study.ErrSessionComplete), errors.Is(err, study.ErrNotStarted):
				writeError(w, http.StatusConflict, err)
			default:
				s.writeStoreError(w, err)
			}
			return
		}
		writeJSON(w, http.StatusOK, studyViewOf(sess))
	}
}

func (s *Server) handleStudyRestart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.currentStudy()
		if sess == nil {
			writeError(w, http.StatusNotFound, errNoSession)
			return
		}
		sess.Restart()
		writeJSON(w, http.StatusOK, studyViewOf(sess))
	}
}

func (s *Server) handleStudyClose() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		if s.study != nil {
			s.study.Close()
			s.study = nil
		}
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

type swipeView struct {
	Phase    string    `json:"phase"`
	Revealed bool      `json:"revealed"`
	Position int       `json:"position"`
	Total    int       `json:"total"`
	Card     *cardView `json:"card,omitempty"`
	Missed   []string  `json:"missed"`
	Term     string    `json:"term"`
	AutoPlay bool      `json:"autoplay"`
}

func swipeViewOf(sess *swipe.Session) swipeView {
	pos, total := sess.Progress()
	v := swipeView{
		Phase:    sess.Phase().String(),
		Revealed: sess.Revealed(),
		Position: pos,
		Total:    total,
		Missed:   sess.Missed(),
		Term:     sess.Term(),
		AutoPlay: sess.AutoPlaying(),
	}
	if c, ok := sess.Current(); ok {
		cv := viewOf(c)
		v.Card = &cv
	}
	return v
}

// handleStartSwipe replaces the swipe session.
func (s *Server) handleStartSwipe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selection
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cards, err := s.selectCards(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		sess := swipe.New(
			swipe.WithDelays(s.opts.FrontDelay, s.opts.BackDelay),
			swipe.WithClock(s.opts.Clock),
			swipe.WithLogger(s.logger),
		)
		sess.Start(repository.Studyable(cards))

		s.mu.Lock()
		if s.swipe != nil {
			s.swipe.Close()
		}
		s.swipe = sess
		s.mu.Unlock()

		writeJSON(w, http.StatusCreated, swipeViewOf(sess))
	}
}

func (s *Server) currentSwipe() *swipe.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swipe
}

func (s *Server) handleSwipeCurrent() http.HandlerFunc {
	return s.withSwipe(func(*swipe.Session, *http.Request) error { return nil })
}

func (s *Server) handleSwipeDecide() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.currentSwipe()
		if sess == nil {
			writeError(w, http.StatusNotFound, errNoSession)
			return
		}
		var req struct {
			Direction swipe.Direction `json:"direction"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Direction != swipe.Good && req.Direction != swipe.Bad {
			writeError(w, http.StatusBadRequest, fmt.Errorf("direction must be good or bad"))
			return
		}
		if err := sess.Decide(req.Direction); err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, swipeViewOf(sess))
	}
}

// withSwipe runs fn against the swipe session and responds with its state.
func (s *Server) withSwipe(fn func(*swipe.Session, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.currentSwipe()
		if sess == nil {
			writeError(w, http.StatusNotFound, errNoSession)
			return
		}
		if err := fn(sess, r); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, swipeViewOf(sess))
	}
}

// handleGenerate asks the generator for an outline and imports it as a new
// document.
func (s *Server) handleGenerate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Generator == nil {
			writeError(w, http.StatusNotImplemented, errUnavailable)
			return
		}
		var req struct {
			Topic string `json:"topic"`
		}
		if err := decode(r, &req); err != nil || req.Topic == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("topic is required"))
			return
		}

		docID := knol.DocumentID(0, "generated/"+req.Topic)
		doc, err := ai.GenerateDocument(r.Context(), s.opts.Generator, docID, req.Topic)
		if err != nil {
			s.logger.Error("failed to generate document", "topic", req.Topic, "error", err)
			status := http.StatusBadGateway
			if errors.Is(err, ai.ErrNoCards) {
				status = http.StatusUnprocessableEntity
			}
			writeError(w, status, err)
			return
		}
		if err := s.store.Put(doc); err != nil {
			s.writeStoreError(w, err)
			return
		}

		cards := repository.DeriveAll([]domain.Document{doc})
		writeJSON(w, http.StatusCreated, map[string]any{
			"document": doc,
			"cards":    viewsOf(cards),
		})
	}
}

// handleGetSources lists the registered sources.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Lister == nil {
			writeError(w, http.StatusNotImplemented, errUnavailable)
			return
		}
		sources, err := s.opts.Lister.GetAllSources()
		if err != nil {
			s.logger.Error("failed to get sources", "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		views := make([]map[string]any, 0, len(sources))
		for _, src := range sources {
			v := map[string]any{"id": src.ID, "path": src.Path, "type": src.Type}
			if src.LastScanned.Valid {
				v["last_scanned"] = src.LastScanned.Time
			}
			views = append(views, v)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// handlePostSource adds a source and syncs it right away.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Sources == nil {
			writeError(w, http.StatusNotImplemented, errUnavailable)
			return
		}
		var req struct {
			Path string `json:"path"`
		}
		if err := decode(r, &req); err != nil || req.Path == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("path cannot be empty"))
			return
		}

		source, err := s.opts.Sources.AddSource(req.Path)
		if err != nil {
			s.logger.Error("failed to add source", "path", req.Path, "error", err)
			writeError(w, http.StatusBadRequest, err)
			return
		}
		res, err := s.opts.Sources.Run(r.Context(), source)
		if err != nil {
			s.logger.Error("failed to sync new source", "id", source.ID, "error", err)
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// handleDeleteSource removes a source and its documents.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Sources == nil {
			writeError(w, http.StatusNotImplemented, errUnavailable)
			return
		}
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid source ID"))
			return
		}
		if err := s.opts.Sources.RemoveSource(id); err != nil {
			s.logger.Error("failed to delete source", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync resyncs every source in the foreground.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Sources == nil {
			writeError(w, http.StatusNotImplemented, errUnavailable)
			return
		}
		results, err := s.opts.Sources.RunAll(r.Context())
		if err != nil {
			s.logger.Error("sync failed", "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if results == nil {
			results = []knolsync.Result{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrDocumentNotFound) || errors.Is(err, store.ErrBlockNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.logger.Error("store operation failed", "error", err)
	writeError(w, http.StatusInternalServerError, err)
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
