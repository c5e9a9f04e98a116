package store

import (
	"database/sql"
	"fmt"
	"strings"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// pragmas mirror the teacher's sqlite_bm25.go setup: WAL mode set via
// explicit PRAGMA statements since modernc.org/sqlite may ignore DSN-level
// journal_mode parameters, plus a busy timeout to tolerate lock contention
// from the single-writer invariant.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA cache_size = -65536",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA foreign_keys = ON",
}

const baseSchema = `
CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	extension TEXT NOT NULL,
	size INTEGER NOT NULL,
	modified_time REAL NOT NULL,
	language TEXT NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_files_path ON files(path);
CREATE INDEX IF NOT EXISTS idx_files_language ON files(language);

CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id INTEGER NOT NULL REFERENCES files(id),
	chunk_type TEXT NOT NULL,
	symbol TEXT,
	code TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	start_byte INTEGER NOT NULL,
	end_byte INTEGER NOT NULL,
	size INTEGER NOT NULL,
	signature TEXT,
	language TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chunks_file_id ON chunks(file_id);
CREATE INDEX IF NOT EXISTS idx_chunks_chunk_type ON chunks(chunk_type);
CREATE INDEX IF NOT EXISTS idx_chunks_symbol ON chunks(symbol);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
	doc_id UNINDEXED, content, tokenize='unicode61'
);
CREATE TABLE IF NOT EXISTS fts_doc_ids (
	chunk_id INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// initSchema applies pragmas and creates the base tables (files, chunks, the
// FTS5 content index, and the state KV table). Per-dimension embeddings_{D}
// tables are created on demand by ensureEmbeddingsTable.
func initSchema(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return cherrors.Storage("failed to set pragma", err).WithDetail("pragma", p)
		}
	}
	if _, err := db.Exec(baseSchema); err != nil {
		return cherrors.Storage("failed to initialize schema", err)
	}
	return nil
}

// ensureEmbeddingsTable creates embeddings_{dims} and its secondary indices
// if they don't already exist.
func ensureEmbeddingsTable(db *sql.DB, dims int) error {
	table := model.EmbeddingsTableName(dims)
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id INTEGER NOT NULL REFERENCES chunks(id),
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	embedding BLOB NOT NULL,
	dims INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(chunk_id, provider, model)
);
CREATE INDEX IF NOT EXISTS idx_%s_chunk_id ON %s(chunk_id);
CREATE INDEX IF NOT EXISTS idx_%s_provider_model ON %s(provider, model);
`, table, table, table, table, table)
	if _, err := db.Exec(ddl); err != nil {
		return cherrors.Storage("failed to create embeddings table", err).WithDetail("table", table)
	}
	return nil
}

// existingEmbeddingDims inspects sqlite_master for embeddings_{D} tables and
// returns their D values.
func existingEmbeddingDims(db *sql.DB) ([]int, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name LIKE 'embeddings_%'`)
	if err != nil {
		return nil, cherrors.Storage("failed to list embedding tables", err)
	}
	defer rows.Close()

	var dimsList []int
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, cherrors.Storage("failed to scan table name", err)
		}
		suffix := strings.TrimPrefix(name, "embeddings_")
		var dims int
		if _, err := fmt.Sscanf(suffix, "%d", &dims); err != nil {
			continue
		}
		dimsList = append(dimsList, dims)
	}
	return dimsList, rows.Err()
}

// forceCheckpoint runs a TRUNCATE-mode WAL checkpoint, folding the WAL back
// into the main database file.
func forceCheckpoint(db *sql.DB) error {
	_, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
