package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/conorfennell/knolnote/internal/domain"
	"github.com/conorfennell/knolnote/internal/extract"
	"github.com/conorfennell/knolnote/internal/outline"
)

// Supported providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

var (
	ErrUnknownProvider = errors.New("ai: unknown provider")
	ErrMissingAPIKey   = errors.New("ai: api key is required")
	ErrNoCards         = errors.New("ai: generated outline contains no cards")
)

// New creates the generator for provider.
func New(ctx context.Context, provider, apiKey, model string) (Generator, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	switch provider {
	case ProviderGemini:
		client, err := NewClient(ctx, apiKey, model)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey, model), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// OutlinePrompt asks for study notes on topic in the outline format the
// importer reads.
func OutlinePrompt(topic string) string {
	return fmt.Sprintf(`
You are writing study notes as an indented outline about: "%s"

Rules:
1. One idea per line. Indent child lines by exactly 4 spaces per level.
2. The first line is the topic title with no indentation.
3. Write question/answer pairs that should be learned both ways as "term :: definition".
4. Write one-way pairs as "question ;; answer".
5. Hide key words in a statement with braces, for example "Water boils at {100} degrees Celsius".
6. Use plain text only: no bullets, numbering, headings or code fences.

Output only the outline.
`, topic)
}

// GenerateDocument asks gen for an outline about topic and imports it as a
// document with the given id.
func GenerateDocument(ctx context.Context, gen Generator, docID, topic string) (domain.Document, error) {
	text, err := gen.GenerateText(ctx, OutlinePrompt(topic))
	if err != nil {
		return domain.Document{}, err
	}

	doc, err := outline.ParseLines(docID, strings.Split(StripFences(text), "\n"))
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to import generated outline: %w", err)
	}
	if doc.Title == "" {
		doc.Title = topic
	}

	for _, b := range doc.Blocks {
		if extract.IsCard(b.Content) {
			return doc, nil
		}
	}
	return domain.Document{}, ErrNoCards
}

// StripFences removes a surrounding markdown code fence.
func StripFences(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) >= 2 && strings.HasPrefix(strings.TrimSpace(lines[0]), "```") &&
		strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[1 : len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
