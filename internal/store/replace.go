package store

import (
	"database/sql"
	"path/filepath"
	"strings"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// ReplaceFileChunks upserts f and atomically applies a chunk diff against
// it — deleting deleteChunkIDs (and their embeddings/FTS rows) and
// inserting insertChunks (whose FileID is overwritten with f's resolved id)
// — all within a single transaction, per the indexing coordinator's
// "steps 5-6 in one transaction" invariant: a failed diff must never leave
// the file row updated with only part of its new chunk set persisted.
func (e *Engine) ReplaceFileChunks(f *model.File, insertChunks []*model.Chunk, deleteChunkIDs []int64) (fileID int64, insertedIDs []int64, err error) {
	tx, err := e.db.Begin()
	if err != nil {
		return 0, nil, cherrors.Storage("failed to begin file replace transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	fileID, err = upsertFileTx(tx, f)
	if err != nil {
		return 0, nil, err
	}

	if len(deleteChunkIDs) > 0 {
		if err := deleteEmbeddingsForChunksTx(tx, e.knownDims(), deleteChunkIDs); err != nil {
			return 0, nil, err
		}
		if err := deleteFTSRowsTx(tx, deleteChunkIDs); err != nil {
			return 0, nil, err
		}
		placeholders := make([]string, len(deleteChunkIDs))
		args := make([]any, len(deleteChunkIDs))
		for i, id := range deleteChunkIDs {
			placeholders[i] = "?"
			args[i] = id
		}
		if _, err := tx.Exec("DELETE FROM chunks WHERE id IN ("+strings.Join(placeholders, ",")+")", args...); err != nil {
			return 0, nil, cherrors.Storage("failed to delete superseded chunks", err)
		}
	}

	insertedIDs = make([]int64, len(insertChunks))
	if len(insertChunks) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO chunks (file_id, chunk_type, symbol, code, start_line, end_line,
				start_byte, end_byte, size, signature, language, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`)
		if err != nil {
			return 0, nil, cherrors.Storage("failed to prepare chunk insert", err)
		}
		defer stmt.Close()

		ftsStmt, err := tx.Prepare(`INSERT INTO fts_content (doc_id, content) VALUES (?, ?)`)
		if err != nil {
			return 0, nil, cherrors.Storage("failed to prepare fts insert", err)
		}
		defer ftsStmt.Close()

		for i, c := range insertChunks {
			c.FileID = fileID
			c.Size = len(c.Code)
			res, err := stmt.Exec(c.FileID, string(c.ChunkType), nullableString(c.Symbol), c.Code,
				c.StartLine, c.EndLine, c.StartByte, c.EndByte, c.Size,
				nullableString(c.Signature), string(c.Language))
			if err != nil {
				return 0, nil, cherrors.Storage("failed to insert chunk", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return 0, nil, cherrors.Storage("failed to read inserted chunk id", err)
			}
			c.ID = id
			insertedIDs[i] = id

			if _, err := ftsStmt.Exec(id, c.Code); err != nil {
				return 0, nil, cherrors.Storage("failed to index chunk content", err)
			}
			if _, err := tx.Exec(`INSERT INTO fts_doc_ids (chunk_id) VALUES (?)`, id); err != nil {
				return 0, nil, cherrors.Storage("failed to track fts doc id", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, cherrors.Storage("failed to commit file replace", err)
	}

	for _, id := range deleteChunkIDs {
		e.removeFromVectorIndexes(id)
	}
	e.recordWrite()
	return fileID, insertedIDs, nil
}

// upsertFileTx is the transaction-scoped twin of InsertFile, used so the
// file row update shares ReplaceFileChunks' single transaction. Name and
// extension are derived from path when not already set on f, matching
// InsertFile.
func upsertFileTx(tx *sql.Tx, f *model.File) (int64, error) {
	if f.Name == "" {
		f.Name = filepath.Base(f.Path)
	}
	if f.Extension == "" {
		f.Extension = filepath.Ext(f.Path)
	}
	if f.Language == "" {
		f.Language = model.LanguageUnknown
	}

	res, err := tx.Exec(`
		INSERT INTO files (path, name, extension, size, modified_time, language, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			modified_time = excluded.modified_time,
			language = excluded.language,
			checksum = excluded.checksum,
			updated_at = CURRENT_TIMESTAMP
	`, f.Path, f.Name, f.Extension, f.SizeBytes, f.MTime, string(f.Language), f.Checksum)
	if err != nil {
		return 0, cherrors.Storage("failed to upsert file", err).WithDetail("path", f.Path)
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		row := tx.QueryRow("SELECT id FROM files WHERE path = ?", f.Path)
		if scanErr := row.Scan(&id); scanErr != nil {
			return 0, cherrors.Storage("failed to resolve upserted file id", scanErr)
		}
	}
	return id, nil
}
