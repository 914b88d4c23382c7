package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conorfennell/knolnote/internal/domain"
)

// Sentinel errors for the store package.
var (
	ErrDocumentNotFound = errors.New("store: document not found")
	ErrBlockNotFound    = errors.New("store: block not found")
)

// Persister saves documents somewhere durable. The sqlite storage package
// provides one; a nil Persister keeps documents in memory only.
type Persister interface {
	LoadDocuments() ([]domain.Document, error)
	SaveDocument(doc domain.Document) error
	DeleteDocument(id string) error
}

// Store owns the documents. Every read returns a copy and every write goes
// through Update or one of its helpers, which persist the changed documents
// and notify subscribers.
type Store struct {
	mu        sync.RWMutex
	docs      []domain.Document
	persister Persister
	logger    *slog.Logger

	subMu  sync.Mutex
	nextID int
	subs   map[int]func([]domain.Document)
}

// New loads the documents from p. A nil p starts empty.
func New(p Persister, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		persister: p,
		logger:    logger,
		subs:      make(map[int]func([]domain.Document)),
	}
	if p != nil {
		docs, err := p.LoadDocuments()
		if err != nil {
			return nil, fmt.Errorf("failed to load documents: %w", err)
		}
		s.docs = docs
	}
	return s, nil
}

// Get returns a copy of every document.
func (s *Store) Get() []domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.docs)
}

// Document returns a copy of the document with the given id.
func (s *Store) Document(id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.docs {
		if d.ID == id {
			return d.Clone(), nil
		}
	}
	return domain.Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
}

// Update replaces the document set with the result of fn, which receives a
// copy it may modify freely. Documents that changed are saved, documents that
// disappeared are deleted, then subscribers are notified.
func (s *Store) Update(fn func([]domain.Document) ([]domain.Document, error)) error {
	s.mu.Lock()
	next, err := fn(cloneAll(s.docs))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.persist(s.docs, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs = next
	snapshot := cloneAll(next)
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// Put inserts doc or replaces the document with the same id.
func (s *Store) Put(doc domain.Document) error {
	return s.Update(func(docs []domain.Document) ([]domain.Document, error) {
		for i, d := range docs {
			if d.ID == doc.ID {
				docs[i] = doc.Clone()
				return docs, nil
			}
		}
		return append(docs, doc.Clone()), nil
	})
}

// Delete removes the document with the given id.
func (s *Store) Delete(id string) error {
	return s.Update(func(docs []domain.Document) ([]domain.Document, error) {
		for i, d := range docs {
			if d.ID == id {
				return append(docs[:i], docs[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	})
}

// ModifyBlockSrs applies fn to the record of one block, creating the default
// record first if the block has none.
func (s *Store) ModifyBlockSrs(docID, blockID string, fn func(*domain.SrsRecord)) error {
	return s.Update(func(docs []domain.Document) ([]domain.Document, error) {
		for i := range docs {
			if docs[i].ID != docID {
				continue
			}
			j := docs[i].BlockIndex(blockID)
			if j < 0 {
				return nil, fmt.Errorf("%w: %s in document %s", ErrBlockNotFound, blockID, docID)
			}
			rec := docs[i].Blocks[j].Record()
			fn(&rec)
			docs[i].Blocks[j].SRS = &rec
			return docs, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	})
}

// UpdateBlockSrs replaces the record of one block.
func (s *Store) UpdateBlockSrs(docID, blockID string, rec domain.SrsRecord) error {
	return s.ModifyBlockSrs(docID, blockID, func(r *domain.SrsRecord) {
		*r = rec
	})
}

// ToggleDisabled flips the disabled flag of one block.
func (s *Store) ToggleDisabled(docID, blockID string) error {
	return s.ModifyBlockSrs(docID, blockID, func(r *domain.SrsRecord) {
		r.ToggleDisabled()
	})
}

// Subscribe registers fn to receive a copy of the documents after every
// update. The returned function removes the subscription.
func (s *Store) Subscribe(fn func([]domain.Document)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(docs []domain.Document) {
	s.subMu.Lock()
	subs := make([]func([]domain.Document), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(cloneAll(docs))
	}
}

// persist must be called with s.mu held.
func (s *Store) persist(prev, next []domain.Document) error {
	if s.persister == nil {
		return nil
	}

	old := make(map[string]domain.Document, len(prev))
	for _, d := range prev {
		old[d.ID] = d
	}
	for _, d := range next {
		if o, ok := old[d.ID]; ok && equal(o, d) {
			delete(old, d.ID)
			continue
		}
		delete(old, d.ID)
		if err := s.persister.SaveDocument(d); err != nil {
			return fmt.Errorf("failed to save document %s: %w", d.ID, err)
		}
		s.logger.Debug("document saved", "id", d.ID, "blocks", len(d.Blocks))
	}
	for id := range old {
		if err := s.persister.DeleteDocument(id); err != nil {
			return fmt.Errorf("failed to delete document %s: %w", id, err)
		}
		s.logger.Debug("document deleted", "id", id)
	}
	return nil
}

func cloneAll(docs []domain.Document) []domain.Document {
	if docs == nil {
		return nil
	}
	out := make([]domain.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}

func equal(a, b domain.Document) bool {
	if a.ID != b.ID || a.Title != b.Title || a.FolderID != b.FolderID ||
		a.SourceID != b.SourceID || a.Path != b.Path || len(a.Blocks) != len(b.Blocks) {
		return false
	}
	for i := range a.Blocks {
		x, y := a.Blocks[i], b.Blocks[i]
		if x.ID != y.ID || x.Content != y.Content || x.Level != y.Level {
			return false
		}
		if (x.SRS == nil) != (y.SRS == nil) {
			return false
		}
		if x.SRS != nil {
			xr, yr := *x.SRS, *y.SRS
			if !xr.NextReview.Equal(yr.NextReview) {
				return false
			}
			xr.NextReview, yr.NextReview = time.Time{}, time.Time{}
			if xr != yr {
				return false
			}
		}
	}
	return true
}
