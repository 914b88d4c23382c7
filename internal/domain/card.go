package domain

import "time"

// CardType is the kind of flashcard a block produced.
type CardType string

const (
	Forward       CardType = "forward"
	Bidirectional CardType = "bidirectional"
	Cloze         CardType = "cloze"
)

// Status is derived from the repetition count of the source block.
type Status string

const (
	StatusNew    Status = "new"
	StatusReview Status = "review"
)

// Flashcard is a read-only projection of a Block. It is recomputed whenever
// cards are derived and never stored. Its statistics are a copy of the
// block's SrsRecord at derivation time; updates must go through the store.
type Flashcard struct {
	ID          string    `json:"id"`
	BlockID     string    `json:"block_id"`
	DocID       string    `json:"doc_id"`
	Front       string    `json:"front"`
	Back        string    `json:"back"`
	Type        CardType  `json:"card_type"`
	Status      Status    `json:"status"`
	Interval    float64   `json:"interval"`
	EaseFactor  float64   `json:"ease_factor"`
	Repetitions int       `json:"repetitions"`
	Lapses      int       `json:"lapses"`
	Disabled    bool      `json:"disabled"`
	NextReview  time.Time `json:"next_review"`
	Ancestors   []string  `json:"ancestors,omitempty"`
}

// NewFlashcard builds a card of the given type from a block's current record.
func NewFlashcard(id, docID string, b Block, front, back string, t CardType) Flashcard {
	rec := b.Record()
	return Flashcard{
		ID:          id,
		BlockID:     b.ID,
		DocID:       docID,
		Front:       front,
		Back:        back,
		Type:        t,
		Status:      rec.Status(),
		Interval:    rec.Interval,
		EaseFactor:  rec.EaseFactor,
		Repetitions: rec.Repetitions,
		Lapses:      rec.Lapses,
		Disabled:    rec.Disabled,
		NextReview:  rec.NextReview,
	}
}
