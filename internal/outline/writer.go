package outline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conorfennell/knolnote/internal/domain"
)

// Write renders doc in the format accepted by Parse.
func Write(w io.Writer, doc domain.Document) error {
	bw := bufio.NewWriter(w)

	if doc.Title != "" || doc.FolderID != "" {
		fmData, err := yaml.Marshal(FrontMatter{Title: doc.Title, Folder: doc.FolderID})
		if err != nil {
			return fmt.Errorf("failed to marshal front matter: %w", err)
		}
		fmt.Fprintf(bw, "%s\n%s%s\n", frontMatterDelimiter, fmData, frontMatterDelimiter)
	}

	for _, b := range doc.Blocks {
		fmt.Fprintf(bw, "%s%s\n", strings.Repeat(" ", b.Level*indentWidth), b.Content)
	}
	return bw.Flush()
}

// WriteFile writes doc to path, creating parent directories.
func WriteFile(path string, doc domain.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
