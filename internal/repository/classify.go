package repository

import (
	"fmt"

	"github.com/conorfennell/knolnote/internal/domain"
)

// DefaultLeechThreshold is the lapse count at which a card becomes a leech.
const DefaultLeechThreshold = 8

// BucketName identifies one of the classification buckets.
type BucketName string

const (
	BucketLeech      BucketName = "leech"
	BucketStruggling BucketName = "struggling"
	BucketDisabled   BucketName = "disabled"
	BucketNew        BucketName = "new"
	BucketEnabled    BucketName = "enabled"
	BucketAll        BucketName = "all"
)

// Buckets groups cards by their repetition statistics. Leech, Struggling and
// New are disjoint subsets of Enabled but do not cover it: a card that was
// never failed and has been passed is only in Enabled.
type Buckets struct {
	Leech      []domain.Flashcard
	Struggling []domain.Flashcard
	Disabled   []domain.Flashcard
	New        []domain.Flashcard
	Enabled    []domain.Flashcard
	All        []domain.Flashcard
}

// Counts holds the size of every bucket.
type Counts struct {
	Leech      int `json:"leech"`
	Struggling int `json:"struggling"`
	Disabled   int `json:"disabled"`
	New        int `json:"new"`
	Enabled    int `json:"enabled"`
	All        int `json:"all"`
}

// Classify sorts cards into buckets. When filter is non-blank only cards
// matching it are considered.
func Classify(cards []domain.Flashcard, leechThreshold int, filter string) Buckets {
	var b Buckets
	for _, c := range Filter(cards, filter) {
		b.All = append(b.All, c)
		if c.Disabled {
			b.Disabled = append(b.Disabled, c)
			continue
		}
		b.Enabled = append(b.Enabled, c)

		switch {
		case c.Lapses >= leechThreshold:
			b.Leech = append(b.Leech, c)
		case c.Lapses > 0:
			b.Struggling = append(b.Struggling, c)
		case c.Repetitions == 0:
			b.New = append(b.New, c)
		}
	}
	return b
}

// Get returns the bucket with the given name.
func (b Buckets) Get(name BucketName) ([]domain.Flashcard, error) {
	switch name {
	case BucketLeech:
		return b.Leech, nil
	case BucketStruggling:
		return b.Struggling, nil
	case BucketDisabled:
		return b.Disabled, nil
	case BucketNew:
		return b.New, nil
	case BucketEnabled, "":
		return b.Enabled, nil
	case BucketAll:
		return b.All, nil
	}
	return nil, fmt.Errorf("unknown bucket %q", name)
}

// Counts returns the size of every bucket.
func (b Buckets) Counts() Counts {
	return Counts{
		Leech:      len(b.Leech),
		Struggling: len(b.Struggling),
		Disabled:   len(b.Disabled),
		New:        len(b.New),
		Enabled:    len(b.Enabled),
		All:        len(b.All),
	}
}
