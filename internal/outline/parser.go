package outline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conorfennell/knolnote/internal/domain"
	"github.com/conorfennell/knolnote/internal/knol"
)

const (
	frontMatterDelimiter = "---"
	indentWidth          = 4
	tabWidth             = indentWidth
)

var listMarkers = []string{"- ", "* "}

type state int

const (
	seeking state = iota
	readingFrontMatter
	readingBody
)

// FrontMatter is the optional YAML header of an outline file.
type FrontMatter struct {
	Title  string `yaml:"title,omitempty"`
	Folder string `yaml:"folder,omitempty"`
}

// ParseFile reads an outline file from the given path.
func ParseFile(docID, path string) (domain.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return domain.Document{}, err
	}
	defer file.Close()

	doc, err := Parse(docID, file)
	if err != nil {
		return domain.Document{}, err
	}
	doc.Path = path
	return doc, nil
}

// Parse converts indented text into a document. Each non-blank line becomes
// one block; its level is the width of its leading whitespace divided by
// four, with a tab counting as four spaces.
func Parse(docID string, r io.Reader) (domain.Document, error) {
	scanner := bufio.NewScanner(r)
	doc := domain.Document{ID: docID}
	var frontMatter []string
	occurrences := make(map[string]int)
	currentState := seeking

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")

		switch currentState {
		case seeking:
			if line == frontMatterDelimiter {
				currentState = readingFrontMatter
				continue
			}
			currentState = readingBody
		case readingFrontMatter:
			if line == frontMatterDelimiter {
				currentState = readingBody
			} else {
				frontMatter = append(frontMatter, line)
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		level, content := splitIndent(line)
		key := knol.Normalize(content)
		doc.Blocks = append(doc.Blocks, domain.Block{
			ID:      knol.BlockID(docID, content, occurrences[key]),
			Content: content,
			Level:   level,
		})
		occurrences[key]++
	}

	if err := scanner.Err(); err != nil {
		return domain.Document{}, err
	}
	if currentState == readingFrontMatter {
		return domain.Document{}, fmt.Errorf("unterminated front matter in document %s", docID)
	}

	if len(frontMatter) > 0 {
		var fm FrontMatter
		if err := yaml.Unmarshal([]byte(strings.Join(frontMatter, "\n")), &fm); err != nil {
			return domain.Document{}, fmt.Errorf("failed to parse front matter: %w", err)
		}
		doc.Title = fm.Title
		doc.FolderID = fm.Folder
	}

	return doc, nil
}

// ParseLines imports lines produced by a generator, such as an AI service.
func ParseLines(docID string, lines []string) (domain.Document, error) {
	return Parse(docID, strings.NewReader(strings.Join(lines, "\n")))
}

func splitIndent(line string) (int, string) {
	width := 0
	i := 0
loop:
	for ; i < len(line); i++ {
		switch line[i] {
		case ' ':
			width++
		case '\t':
			width += tabWidth
		default:
			break loop
		}
	}
	content := line[i:]
	for _, m := range listMarkers {
		if strings.HasPrefix(content, m) {
			content = strings.TrimSpace(content[len(m):])
			break
		}
	}
	return width / indentWidth, content
}
