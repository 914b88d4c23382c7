package sync

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/knolnote/internal/domain"
	"github.com/conorfennell/knolnote/internal/gitsource"
	"github.com/conorfennell/knolnote/internal/knol"
	"github.com/conorfennell/knolnote/internal/outline"
	"github.com/conorfennell/knolnote/internal/storage"
	"github.com/conorfennell/knolnote/internal/store"
)

// Source types recorded in the sources table.
const (
	TypeLocal = "local"
	TypeGit   = "git"
)

var outlineExtensions = []string{".md", ".txt"}

// Sources is the part of the database the syncer needs.
type Sources interface {
	InsertSource(path, sourceType string) (int64, error)
	FindSourceByPath(path string) (*storage.Source, error)
	GetAllSources() ([]storage.Source, error)
	UpdateSourceLastScanned(sourceID int64) error
	DeleteSource(id int64) error
}

// FetchFunc brings a git repository up to date in a local directory.
type FetchFunc func(ctx context.Context, logger *slog.Logger, repoURL, localPath string, progress io.Writer) error

// Result summarises one reconciliation.
type Result struct {
	SourceID int64 `json:"source_id"`
	Path     string `json:"path"`
	Parsed   int    `json:"parsed"`
	Removed  int    `json:"removed"`
	Errors   int    `json:"errors"`
}

// Syncer imports outline files from registered sources into the store.
type Syncer struct {
	sources  Sources
	store    *store.Store
	reposDir string
	fetch    FetchFunc
	progress io.Writer
	logger   *slog.Logger
}

// New creates a Syncer. Git sources are checked out under reposDir.
func New(sources Sources, st *store.Store, reposDir string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		sources:  sources,
		store:    st,
		reposDir: reposDir,
		fetch:    gitsource.Sync,
		logger:   logger,
	}
}

// WithFetch replaces the git fetcher.
func (s *Syncer) WithFetch(fetch FetchFunc) *Syncer {
	s.fetch = fetch
	return s
}

// WithProgress sends git progress output to w.
func (s *Syncer) WithProgress(w io.Writer) *Syncer {
	s.progress = w
	return s
}

// AddSource registers a local directory or a git URL. Registering a path
// twice returns the existing source.
func (s *Syncer) AddSource(path string) (storage.Source, error) {
	sourceType := TypeLocal
	if gitsource.IsURL(path) {
		sourceType = TypeGit
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return storage.Source{}, fmt.Errorf("failed to resolve path %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return storage.Source{}, fmt.Errorf("failed to stat source %s: %w", abs, err)
		}
		if !info.IsDir() {
			return storage.Source{}, fmt.Errorf("source %s is not a directory", abs)
		}
		path = abs
	}

	existing, err := s.sources.FindSourceByPath(path)
	if err != nil {
		return storage.Source{}, err
	}
	if existing != nil {
		s.logger.Info("source already registered", "id", existing.ID, "path", path)
		return *existing, nil
	}

	id, err := s.sources.InsertSource(path, sourceType)
	if err != nil {
		return storage.Source{}, err
	}
	s.logger.Info("source added", "id", id, "type", sourceType, "path", path)
	return storage.Source{ID: id, Path: path, Type: sourceType}, nil
}

// RemoveSource deletes a source and every document imported from it.
func (s *Syncer) RemoveSource(id int64) error {
	err := s.store.Update(func(docs []domain.Document) ([]domain.Document, error) {
		kept := docs[:0]
		for _, d := range docs {
			if d.SourceID != id {
				kept = append(kept, d)
			}
		}
		return kept, nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove documents of source %d: %w", id, err)
	}
	return s.sources.DeleteSource(id)
}

// RunAll reconciles every registered source. A failing source is logged and
// skipped.
func (s *Syncer) RunAll(ctx context.Context) ([]Result, error) {
	s.logger.Info("starting sync for all sources")
	sources, err := s.sources.GetAllSources()
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		s.logger.Info("no sources configured, add one with --add-source <path/or/url.git>")
		return nil, nil
	}

	var results []Result
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.Run(ctx, source)
		if err != nil {
			s.logger.Error("failed to sync source", "id", source.ID, "path", source.Path, "error", err)
			continue
		}
		results = append(results, res)
	}
	s.logger.Info("sync complete", "sources", len(results))
	return results, nil
}

// Run reconciles one source, fetching it first when it is a git repository.
func (s *Syncer) Run(ctx context.Context, source storage.Source) (Result, error) {
	s.logger.Info("syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

	dir := source.Path
	if source.Type == TypeGit {
		if err := os.MkdirAll(s.reposDir, os.ModePerm); err != nil {
			return Result{}, fmt.Errorf("failed to create repos directory: %w", err)
		}
		local, err := gitsource.LocalPath(s.reposDir, source.Path)
		if err != nil {
			return Result{}, err
		}
		if err := s.fetch(ctx, s.logger, source.Path, local, s.progress); err != nil {
			return Result{}, err
		}
		dir = local
	}

	res, err := s.Reconcile(source.ID, dir)
	if err != nil {
		return res, err
	}
	if err := s.sources.UpdateSourceLastScanned(source.ID); err != nil {
		s.logger.Warn("failed to update last scanned for source", "source_id", source.ID, "error", err)
	}
	return res, nil
}

// Reconcile imports every outline file under dir as the documents of
// sourceID. Blocks that survive a re-import keep their records, and
// documents whose file disappeared are removed.
func (s *Syncer) Reconcile(sourceID int64, dir string) (Result, error) {
	res := Result{SourceID: sourceID, Path: dir}
	var parsed []domain.Document

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isOutline(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		doc, parseErr := outline.ParseFile(knol.DocumentID(sourceID, rel), path)
		if parseErr != nil {
			res.Errors++
			s.logger.Warn("failed to parse outline", "path", path, "error", parseErr)
			return nil
		}
		if doc.Title == "" {
			doc.Title = strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		}
		doc.SourceID = sourceID
		parsed = append(parsed, doc)
		return nil
	})
	if walkErr != nil {
		return res, fmt.Errorf("failed to walk directory %s: %w", dir, walkErr)
	}
	res.Parsed = len(parsed)

	err := s.store.Update(func(docs []domain.Document) ([]domain.Document, error) {
		next, removed := merge(docs, parsed, sourceID)
		res.Removed = removed
		return next, nil
	})
	if err != nil {
		return res, fmt.Errorf("failed to store documents of source %d: %w", sourceID, err)
	}

	s.logger.Info("reconciliation complete",
		"path", dir,
		"parsed_documents", res.Parsed,
		"orphaned_deleted", res.Removed,
		"errors", res.Errors,
	)
	return res, nil
}

// merge replaces the documents of sourceID with parsed, carrying records
// over by block id. Documents of other sources are left alone.
func merge(docs, parsed []domain.Document, sourceID int64) ([]domain.Document, int) {
	existing := make(map[string]domain.Document)
	for _, d := range docs {
		if d.SourceID == sourceID {
			existing[d.ID] = d
		}
	}

	for i := range parsed {
		old, ok := existing[parsed[i].ID]
		if !ok {
			continue
		}
		records := make(map[string]*domain.SrsRecord, len(old.Blocks))
		for _, b := range old.Blocks {
			if b.SRS != nil {
				records[b.ID] = b.SRS
			}
		}
		for j := range parsed[i].Blocks {
			if rec, ok := records[parsed[i].Blocks[j].ID]; ok {
				r := *rec
				parsed[i].Blocks[j].SRS = &r
			}
		}
	}

	fresh := make(map[string]domain.Document, len(parsed))
	for _, d := range parsed {
		fresh[d.ID] = d
	}

	var next []domain.Document
	removed := 0
	for _, d := range docs {
		if d.SourceID != sourceID {
			next = append(next, d)
			continue
		}
		if p, ok := fresh[d.ID]; ok {
			next = append(next, p)
			delete(fresh, d.ID)
			continue
		}
		removed++
	}
	for _, d := range parsed {
		if _, ok := fresh[d.ID]; ok {
			next = append(next, d)
		}
	}
	return next, removed
}

func isOutline(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range outlineExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
