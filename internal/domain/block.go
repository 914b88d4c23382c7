package domain

import "time"

// DefaultEaseFactor is the ease factor of a block that has never been rated.
const DefaultEaseFactor = 2.5

// SrsRecord holds the repetition statistics of one block. Both cards of a
// bidirectional block share it.
type SrsRecord struct {
	NextReview  time.Time `json:"next_review"`
	Interval    float64   `json:"interval"`
	EaseFactor  float64   `json:"ease_factor"`
	Repetitions int       `json:"repetitions"`
	Lapses      int       `json:"lapses"`
	Disabled    bool      `json:"disabled"`
}

// NewSrsRecord returns the record used for blocks that have none.
func NewSrsRecord() SrsRecord {
	return SrsRecord{EaseFactor: DefaultEaseFactor}
}

// Status reports new until the block has been passed at least once.
func (r SrsRecord) Status() Status {
	if r.Repetitions == 0 {
		return StatusNew
	}
	return StatusReview
}

// Fail records a lapse and resets the repetition streak.
func (r *SrsRecord) Fail() {
	r.Lapses++
	r.Repetitions = 0
}

// Pass records a successful repetition.
func (r *SrsRecord) Pass() {
	r.Repetitions++
}

// ToggleDisabled flips the disabled flag and nothing else.
func (r *SrsRecord) ToggleDisabled() {
	r.Disabled = !r.Disabled
}

// Block is one line of an outline. Its parent is the nearest preceding block
// with a smaller Level; no parent reference is stored.
type Block struct {
	ID      string     `json:"id"`
	Content string     `json:"content"`
	Level   int        `json:"level"`
	SRS     *SrsRecord `json:"srs_data,omitempty"`
}

// Record returns the block's record, or the default record if it has none.
func (b Block) Record() SrsRecord {
	if b.SRS == nil {
		return NewSrsRecord()
	}
	return *b.SRS
}

// Document is an ordered outline of blocks.
type Document struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	FolderID string  `json:"folder_id,omitempty"`
	SourceID int64   `json:"source_id,omitempty"`
	Path     string  `json:"path,omitempty"`
	Blocks   []Block `json:"blocks"`
}

// Clone returns a copy of the document whose blocks and records can be
// modified without affecting d.
func (d Document) Clone() Document {
	out := d
	out.Blocks = make([]Block, len(d.Blocks))
	for i, b := range d.Blocks {
		if b.SRS != nil {
			rec := *b.SRS
			b.SRS = &rec
		}
		out.Blocks[i] = b
	}
	return out
}

// BlockIndex returns the position of the block with the given id, or -1.
func (d Document) BlockIndex(blockID string) int {
	for i, b := range d.Blocks {
		if b.ID == blockID {
			return i
		}
	}
	return -1
}
