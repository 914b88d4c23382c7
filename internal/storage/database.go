package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/knolnote/internal/domain"
	"github.com/conorfennell/knolnote/internal/store"
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

var _ store.Persister = (*DB)(nil)

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SaveDocument replaces a document and all of its blocks.
func (db *DB) SaveDocument(doc domain.Document) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for document %s: %w", doc.ID, err)
	}
	defer tx.Rollback()

	var sourceID sql.NullInt64
	if doc.SourceID != 0 {
		sourceID = sql.NullInt64{Int64: doc.SourceID, Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO documents (id, title, folder_id, source_id, path)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			folder_id = excluded.folder_id,
			source_id = excluded.source_id,
			path = excluded.path
	`, doc.ID, doc.Title, doc.FolderID, sourceID, doc.Path)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM blocks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear blocks of document %s: %w", doc.ID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO blocks (document_id, id, position, content, level, has_srs,
			next_review, interval, ease_factor, repetitions, lapses, disabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare block insert: %w", err)
	}
	defer stmt.Close()

	for i, b := range doc.Blocks {
		rec := b.Record()
		_, err := stmt.Exec(
			doc.ID,
			b.ID,
			i,
			b.Content,
			b.Level,
			b.SRS != nil,
			toMillis(rec.NextReview),
			rec.Interval,
			rec.EaseFactor,
			rec.Repetitions,
			rec.Lapses,
			rec.Disabled,
		)
		if err != nil {
			return fmt.Errorf("failed to insert block %s of document %s: %w", b.ID, doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document %s: %w", doc.ID, err)
	}
	return nil
}

// DeleteDocument removes a document and its blocks.
func (db *DB) DeleteDocument(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM blocks WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete blocks of document %s: %w", id, err)
	}
	if _, err := db.conn.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// LoadDocuments retrieves every document with its blocks in order.
func (db *DB) LoadDocuments() ([]domain.Document, error) {
	rows, err := db.conn.Query(`
		SELECT id, title, folder_id, source_id, path
		FROM documents ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	index := make(map[string]int)
	for rows.Next() {
		var d domain.Document
		var sourceID sql.NullInt64
		if err := rows.Scan(&d.ID, &d.Title, &d.FolderID, &sourceID, &d.Path); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		d.SourceID = sourceID.Int64
		index[d.ID] = len(docs)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	blockRows, err := db.conn.Query(`
		SELECT document_id, id, content, level, has_srs, next_review, interval,
			ease_factor, repetitions, lapses, disabled
		FROM blocks ORDER BY document_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get blocks: %w", err)
	}
	defer blockRows.Close()

	for blockRows.Next() {
		var (
			docID  string
			b      domain.Block
			hasSRS bool
			next   int64
			rec    domain.SrsRecord
		)
		if err := blockRows.Scan(
			&docID,
			&b.ID,
			&b.Content,
			&b.Level,
			&hasSRS,
			&next,
			&rec.Interval,
			&rec.EaseFactor,
			&rec.Repetitions,
			&rec.Lapses,
			&rec.Disabled,
		); err != nil {
			return nil, fmt.Errorf("failed to scan block row: %w", err)
		}
		if hasSRS {
			rec.NextReview = fromMillis(next)
			b.SRS = &rec
		}
		i, ok := index[docID]
		if !ok {
			continue
		}
		docs[i].Blocks = append(docs[i].Blocks, b)
	}
	if err := blockRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read blocks: %w", err)
	}

	return docs, nil
}

// Source represents a card source, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(path, sourceType string) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO sources (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source from the database by its path.
func (db *DB) FindSourceByPath(path string) (*Source, error) {
	var s Source
	row := db.conn.QueryRow(`
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`, path)

	err := row.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Source not found
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources() ([]Source, error) {
	rows, err := db.conn.Query(`
		SELECT id, path, type, last_scanned
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(sourceID int64) error {
	_, err := db.conn.Exec(`
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, time.Now().UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source. Its documents are removed by the cascade.
func (db *DB) DeleteSource(id int64) error {
	_, err := db.conn.Exec(`DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", id, err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
