package storage

const schema = `
-- The 'sources' table tracks where outline files come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local', -- local or git
    last_scanned DATETIME
);

-- The 'documents' table stores one row per outline.
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    folder_id TEXT NOT NULL DEFAULT '',
    source_id INTEGER,
    path TEXT NOT NULL DEFAULT '',

    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
);

-- The 'blocks' table stores the ordered lines of a document and their repetition statistics.
-- has_srs is 0 for blocks that have never been rated or toggled.
CREATE TABLE IF NOT EXISTS blocks (
    document_id TEXT NOT NULL,
    id TEXT NOT NULL,
    position INTEGER NOT NULL,
    content TEXT NOT NULL,
    level INTEGER NOT NULL DEFAULT 0,
    has_srs INTEGER NOT NULL DEFAULT 0,
    next_review INTEGER NOT NULL DEFAULT 0, -- unix milliseconds, 0 when never scheduled
    interval REAL NOT NULL DEFAULT 0,
    ease_factor REAL NOT NULL DEFAULT 2.5,
    repetitions INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    disabled INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY(document_id, id),
    FOREIGN KEY(document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS blocks_document_position ON blocks(document_id, position);
`
