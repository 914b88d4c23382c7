package knol

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
)

// idLength is the number of hex characters kept for block and document ids.
const idLength = 16

// Normalize lowercases and trims text and normalizes line endings.
func Normalize(text string) string {
	p := strings.ToLower(text)
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\r\n", "\n")
	return p
}

// Contains reports whether term occurs in text, ignoring case and
// surrounding whitespace of the term. An empty term matches everything.
func Contains(text, term string) bool {
	t := Normalize(term)
	if t == "" {
		return true
	}
	return strings.Contains(strings.ToLower(text), t)
}

// Hash joins the normalized parts with newlines and returns the SHA-256 hash
// as a hex string. Joining with a newline keeps "ab"+"c" and "a"+"bc" apart.
func Hash(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = Normalize(p)
	}
	hashBytes := sha256.Sum256([]byte(strings.Join(normalized, "\n")))
	return fmt.Sprintf("%x", hashBytes)
}

// BlockID derives a stable id for the n-th occurrence of content within a
// document, so an unchanged line keeps its id across re-imports.
func BlockID(docID, content string, occurrence int) string {
	return Hash(docID, content, strconv.Itoa(occurrence))[:idLength]
}

// DocumentID derives a stable id for a file within a source.
func DocumentID(sourceID int64, relPath string) string {
	return Hash(strconv.FormatInt(sourceID, 10), relPath)[:idLength]
}
