// Package extract derives flashcards from the text of a single block.
//
// A block produces cards according to the first rule that applies:
//
//	front :: back   two bidirectional cards, front->back and back->front
//	front ;; back   one forward card
//	text {hidden}   one cloze card whose front and back are the raw text
//
// Only the text between the first and second delimiter is used as the back;
// anything after a second delimiter is dropped. A delimiter with an empty
// side yields no card.
package extract

import (
	"regexp"
	"strings"

	"github.com/conorfennell/knolnote/internal/domain"
)

const (
	bidirectionalDelimiter = "::"
	forwardDelimiter       = ";;"

	forwardSuffix = "-fwd"
	reverseSuffix = "-rev"
	clozeSuffix   = "-cloze"

	// ClozeMask replaces each hidden span in the masked presentation.
	ClozeMask = "[...]"
)

var clozePattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Extract returns the cards of block b in document docID. It does not look
// at the disabled flag; study callers filter disabled cards themselves.
func Extract(docID string, b domain.Block) []domain.Flashcard {
	content := b.Content

	switch {
	case strings.Contains(content, bidirectionalDelimiter):
		front, back, ok := split(content, bidirectionalDelimiter)
		if !ok {
			return nil
		}
		return []domain.Flashcard{
			domain.NewFlashcard(b.ID+forwardSuffix, docID, b, front, back, domain.Bidirectional),
			domain.NewFlashcard(b.ID+reverseSuffix, docID, b, back, front, domain.Bidirectional),
		}
	case strings.Contains(content, forwardDelimiter):
		front, back, ok := split(content, forwardDelimiter)
		if !ok {
			return nil
		}
		return []domain.Flashcard{
			domain.NewFlashcard(b.ID+forwardSuffix, docID, b, front, back, domain.Forward),
		}
	case clozePattern.MatchString(content):
		return []domain.Flashcard{
			domain.NewFlashcard(b.ID+clozeSuffix, docID, b, content, content, domain.Cloze),
		}
	}
	return nil
}

// IsCard reports whether Extract would produce at least one card for content.
func IsCard(content string) bool {
	return len(Extract("", domain.Block{Content: content})) > 0
}

// ClozeSpans returns the hidden text of every cloze span in content.
func ClozeSpans(content string) []string {
	var spans []string
	for _, m := range clozePattern.FindAllStringSubmatch(content, -1) {
		spans = append(spans, m[1])
	}
	return spans
}

// Mask hides every cloze span of content.
func Mask(content string) string {
	return clozePattern.ReplaceAllLiteralString(content, ClozeMask)
}

// Reveal removes the cloze braces, leaving the hidden text in place.
func Reveal(content string) string {
	return clozePattern.ReplaceAllString(content, "$1")
}

func split(content, delimiter string) (string, string, bool) {
	parts := strings.Split(content, delimiter)
	front := strings.TrimSpace(parts[0])
	back := strings.TrimSpace(parts[1])
	if front == "" || back == "" {
		return "", "", false
	}
	return front, back, true
}
