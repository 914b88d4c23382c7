package repository

import (
	"github.com/conorfennell/knolnote/internal/domain"
	"github.com/conorfennell/knolnote/internal/extract"
	"github.com/conorfennell/knolnote/internal/knol"
	"github.com/conorfennell/knolnote/internal/outline"
)

// DeriveAll extracts every card of every document, in document order and
// then block order. Each card carries the ancestor path of its block.
func DeriveAll(docs []domain.Document) []domain.Flashcard {
	var cards []domain.Flashcard
	for _, doc := range docs {
		for i, b := range doc.Blocks {
			extracted := extract.Extract(doc.ID, b)
			if len(extracted) == 0 {
				continue
			}
			ancestors := outline.AncestorsOf(doc.Blocks, i)
			for _, c := range extracted {
				c.Ancestors = ancestors
				cards = append(cards, c)
			}
		}
	}
	return cards
}

// DeriveSubset returns the derived cards whose id is in ids, keeping
// derivation order. Unknown ids are ignored.
func DeriveSubset(docs []domain.Document, ids []string) []domain.Flashcard {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	var cards []domain.Flashcard
	for _, c := range DeriveAll(docs) {
		if _, ok := wanted[c.ID]; ok {
			cards = append(cards, c)
		}
	}
	return cards
}

// Studyable drops disabled cards.
func Studyable(cards []domain.Flashcard) []domain.Flashcard {
	var out []domain.Flashcard
	for _, c := range cards {
		if !c.Disabled {
			out = append(out, c)
		}
	}
	return out
}

// Matches reports whether term occurs in the card's front, back or any of
// its ancestors, ignoring case.
func Matches(c domain.Flashcard, term string) bool {
	if knol.Contains(c.Front, term) || knol.Contains(c.Back, term) {
		return true
	}
	for _, a := range c.Ancestors {
		if knol.Contains(a, term) {
			return true
		}
	}
	return false
}

// Filter returns the cards matching term. An empty term keeps every card.
func Filter(cards []domain.Flashcard, term string) []domain.Flashcard {
	if knol.Normalize(term) == "" {
		return cards
	}
	var out []domain.Flashcard
	for _, c := range cards {
		if Matches(c, term) {
			out = append(out, c)
		}
	}
	return out
}
