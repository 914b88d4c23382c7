package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/conorfennell/knolnote/internal/clock"
	"github.com/conorfennell/knolnote/internal/domain"
	"github.com/conorfennell/knolnote/internal/repository"
	"github.com/conorfennell/knolnote/internal/store"
	"github.com/conorfennell/knolnote/internal/study"
	"github.com/conorfennell/knolnote/internal/swipe"
)

func seed() domain.Document {
	return domain.Document{
		ID:    "bio",
		Title: "Biology",
		Blocks: []domain.Block{
			{ID: "b0", Content: "Biology", Level: 0},
			{ID: "b1", Content: "Cell :: unit of life", Level: 1},
			{ID: "b2", Content: "Water boils at {100} C", Level: 1},
			{ID: "b3", Content: "Ion ;; charged atom", Level: 0},
		},
	}
}

func newTestServer(t *testing.T, opts Options) (*Server, *store.Store, *clock.Fake) {
	t.Helper()
	st, err := store.New(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Put(seed()); err != nil {
		t.Fatal(err)
	}
	fake := clock.NewFake()
	opts.Clock = fake
	srv := NewServer(st, opts)
	t.Cleanup(srv.Close)
	return srv, st, fake
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

type cardsResponse struct {
	Counts repository.Counts `json:"counts"`
	Cards  []cardView        `json:"cards"`
}

func TestGetCards(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})

	rec := do(t, srv, http.MethodGet, "/api/cards", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d", rec.Code)
	}
	resp := decodeInto[cardsResponse](t, rec)
	if resp.Counts.All != 4 || resp.Counts.Enabled != 4 || resp.Counts.New != 4 {
		t.Errorf("Unexpected counts %+v", resp.Counts)
	}
	if len(resp.Cards) != 4 || resp.Cards[0].ID != "b1-fwd" {
		t.Errorf("Unexpected cards %+v", resp.Cards)
	}

	rec = do(t, srv, http.MethodGet, "/api/cards?q=ion", "")
	resp = decodeInto[cardsResponse](t, rec)
	if resp.Counts.All != 1 || resp.Cards[0].ID != "b3-fwd" {
		t.Errorf("Expected only the ion card, but got %+v", resp)
	}

	rec = do(t, srv, http.MethodGet, "/api/cards?bucket=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for an unknown bucket, but got %d", rec.Code)
	}
}

func TestToggleBlock(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})

	rec := do(t, srv, http.MethodPost, "/api/blocks/bio/b1/toggle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d: %s", rec.Code, rec.Body)
	}
	if r := decodeInto[domain.SrsRecord](t, rec); !r.Disabled {
		t.Error("Expected the block to be disabled")
	}

	resp := decodeInto[cardsResponse](t, do(t, srv, http.MethodGet, "/api/cards?bucket=disabled", ""))
	if resp.Counts.Disabled != 2 || resp.Counts.Enabled != 2 || len(resp.Cards) != 2 {
		t.Errorf("Expected both cards of the block to be disabled, but got %+v", resp.Counts)
	}

	if rec := do(t, srv, http.MethodPost, "/api/blocks/bio/nope/toggle", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for an unknown block, but got %d", rec.Code)
	}
}

func TestStudyFlow(t *testing.T) {
	srv, st, fake := newTestServer(t, Options{})

	if rec := do(t, srv, http.MethodGet, "/api/study/current", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 before a session starts, but got %d", rec.Code)
	}

	rec := do(t, srv, http.MethodPost, "/api/study", `{"mode":"spaced","bucket":"enabled"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, but got %d: %s", rec.Code, rec.Body)
	}
	view := decodeInto[studyView](t, rec)
	if view.Total != 4 || view.Card == nil || view.Card.ID != "b1-fwd" {
		t.Fatalf("Unexpected session %+v", view)
	}
	if len(view.Ratings) != 4 || view.Ratings[0].Rating != study.Again || view.Ratings[0].Label != "<1m" {
		t.Errorf("Unexpected ratings %+v", view.Ratings)
	}

	if rec := do(t, srv, http.MethodPost, "/api/study/rate", `{"card_id":"b3-fwd","rating":"good"}`); rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for a stale card, but got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/study/rate", `{"card_id":"b1-fwd","rating":"2s"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for a foreign rating, but got %d", rec.Code)
	}

	rec = do(t, srv, http.MethodPost, "/api/study/rate", `{"card_id":"b1-fwd","rating":"again"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d: %s", rec.Code, rec.Body)
	}
	view = decodeInto[studyView](t, rec)
	if view.Position != 1 || view.Card.ID != "b1-rev" {
		t.Errorf("Expected to move to b1-rev, but got %+v", view)
	}

	doc, _ := st.Document("bio")
	if rec := doc.Blocks[1].Record(); rec.Lapses != 1 {
		t.Errorf("Expected one lapse on the block, but got %+v", rec)
	}

	fake.Advance(study.DefaultFailDelay)
	view = decodeInto[studyView](t, do(t, srv, http.MethodGet, "/api/study/current", ""))
	if view.Total != 5 {
		t.Errorf("Expected the failed card to be requeued, but got total %d", view.Total)
	}

	view = decodeInto[studyView](t, do(t, srv, http.MethodPost, "/api/study/restart", ""))
	if view.Position != 0 || view.Total != 4 {
		t.Errorf("Expected the original queue after restart, but got %+v", view)
	}

	if rec := do(t, srv, http.MethodDelete, "/api/study", ""); rec.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, but got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/study/current", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after close, but got %d", rec.Code)
	}
}

func TestStartStudyValidation(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})

	testCases := []struct {
		name string
		body string
	}{
		{"missing mode", `{"bucket":"enabled"}`},
		{"unknown mode", `{"mode":"cram"}`},
		{"unknown bucket", `{"mode":"order","bucket":"bogus"}`},
		{"malformed body", `{"mode":`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(t, srv, http.MethodPost, "/api/study", tc.body); rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, but got %d", rec.Code)
			}
		})
	}
}

func TestSwipeFlow(t *testing.T) {
	srv, _, fake := newTestServer(t, Options{})

	rec := do(t, srv, http.MethodPost, "/api/swipe", `{"ids":["b2-cloze","b3-fwd"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, but got %d: %s", rec.Code, rec.Body)
	}
	view := decodeInto[swipeView](t, rec)
	if view.Total != 2 || view.Card == nil {
		t.Fatalf("Unexpected session %+v", view)
	}
	if view.Card.Prompt != "Water boils at [...] C" || view.Card.Answer != "Water boils at 100 C" {
		t.Errorf("Expected a masked cloze prompt, but got %q / %q", view.Card.Prompt, view.Card.Answer)
	}

	view = decodeInto[swipeView](t, do(t, srv, http.MethodPost, "/api/swipe/flip", ""))
	if !view.Revealed || view.Phase != swipe.Back.String() {
		t.Errorf("Expected the back after flip, but got %+v", view)
	}

	view = decodeInto[swipeView](t, do(t, srv, http.MethodPost, "/api/swipe/decide", `{"direction":"bad"}`))
	if view.Position != 1 || len(view.Missed) != 1 || view.Missed[0] != "b2-cloze" {
		t.Errorf("Expected one missed card, but got %+v", view)
	}
	if rec := do(t, srv, http.MethodPost, "/api/swipe/decide", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without a direction, but got %d", rec.Code)
	}

	view = decodeInto[swipeView](t, do(t, srv, http.MethodPost, "/api/swipe/autoplay", `{"on":true}`))
	if !view.AutoPlay {
		t.Fatal("Expected auto-play to be on")
	}
	fake.Advance(swipe.DefaultFrontDelay)
	view = decodeInto[swipeView](t, do(t, srv, http.MethodGet, "/api/swipe/current", ""))
	if !view.Revealed {
		t.Error("Expected the back to be revealed by auto-play")
	}
	fake.Advance(swipe.DefaultBackDelay)
	view = decodeInto[swipeView](t, do(t, srv, http.MethodGet, "/api/swipe/current", ""))
	if view.Position != 2 || view.AutoPlay {
		t.Errorf("Expected auto-play to finish the queue, but got %+v", view)
	}

	view = decodeInto[swipeView](t, do(t, srv, http.MethodPost, "/api/swipe/restart", `{"missed":true}`))
	if view.Total != 1 || view.Card.ID != "b2-cloze" {
		t.Errorf("Expected only the missed card, but got %+v", view)
	}

	view = decodeInto[swipeView](t, do(t, srv, http.MethodPost, "/api/swipe/restart", `{}`))
	if view.Total != 2 {
		t.Errorf("Expected the full set after restart, but got %+v", view)
	}
	view = decodeInto[swipeView](t, do(t, srv, http.MethodPost, "/api/swipe/filter", `{"term":"ion"}`))
	if view.Total != 1 || view.Term != "ion" {
		t.Errorf("Expected one filtered card, but got %+v", view)
	}
}

type stubGenerator struct{ text string }

func (g stubGenerator) GenerateText(context.Context, string) (string, error) { return g.text, nil }
func (g stubGenerator) Close() error                                         { return nil }

func TestGenerate(t *testing.T) {
	srv, st, _ := newTestServer(t, Options{Generator: stubGenerator{text: "Atoms\n    Proton :: positive particle\n"}})

	if rec := do(t, srv, http.MethodPost, "/api/generate", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without a topic, but got %d", rec.Code)
	}

	rec := do(t, srv, http.MethodPost, "/api/generate", `{"topic":"atoms"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, but got %d: %s", rec.Code, rec.Body)
	}
	resp := decodeInto[struct {
		Cards []cardView `json:"cards"`
	}](t, rec)
	if len(resp.Cards) != 2 {
		t.Errorf("Expected 2 generated cards, but got %d", len(resp.Cards))
	}
	if len(st.Get()) != 2 {
		t.Errorf("Expected the generated document in the store, but got %d documents", len(st.Get()))
	}
}

func TestUnconfiguredRoutes(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})

	routes := []struct{ method, path, body string }{
		{http.MethodPost, "/api/generate", `{"topic":"x"}`},
		{http.MethodGet, "/api/sources", ""},
		{http.MethodPost, "/api/sources", `{"path":"/tmp"}`},
		{http.MethodDelete, "/api/sources/1", ""},
		{http.MethodPost, "/api/sync", ""},
	}
	for _, r := range routes {
		if rec := do(t, srv, r.method, r.path, r.body); rec.Code != http.StatusNotImplemented {
			t.Errorf("%s %s: expected status 501, but got %d", r.method, r.path, rec.Code)
		}
	}
}
