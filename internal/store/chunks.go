package store

import (
	"database/sql"
	"errors"
	"strings"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// InsertChunk inserts a single chunk and its FTS content row, returning its id.
func (e *Engine) InsertChunk(c *model.Chunk) (int64, error) {
	ids, err := e.InsertChunksBatch([]*model.Chunk{c})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// InsertChunksBatch inserts chunks in a single multi-row statement, returning
// ids in input order.
func (e *Engine) InsertChunksBatch(chunks []*model.Chunk) ([]int64, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	tx, err := e.db.Begin()
	if err != nil {
		return nil, cherrors.Storage("failed to begin chunk insert transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ids := make([]int64, len(chunks))
	stmt, err := tx.Prepare(`
		INSERT INTO chunks (file_id, chunk_type, symbol, code, start_line, end_line,
			start_byte, end_byte, size, signature, language, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`)
	if err != nil {
		return nil, cherrors.Storage("failed to prepare chunk insert", err)
	}
	defer stmt.Close()

	ftsStmt, err := tx.Prepare(`INSERT INTO fts_content (doc_id, content) VALUES (?, ?)`)
	if err != nil {
		return nil, cherrors.Storage("failed to prepare fts insert", err)
	}
	defer ftsStmt.Close()

	for i, c := range chunks {
		c.Size = len(c.Code)
		res, err := stmt.Exec(c.FileID, string(c.ChunkType), nullableString(c.Symbol), c.Code,
			c.StartLine, c.EndLine, c.StartByte, c.EndByte, c.Size,
			nullableString(c.Signature), string(c.Language))
		if err != nil {
			return nil, cherrors.Storage("failed to insert chunk", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, cherrors.Storage("failed to read inserted chunk id", err)
		}
		c.ID = id
		ids[i] = id

		if _, err := ftsStmt.Exec(id, c.Code); err != nil {
			return nil, cherrors.Storage("failed to index chunk content", err)
		}
		if _, err := tx.Exec(`INSERT INTO fts_doc_ids (chunk_id) VALUES (?)`, id); err != nil {
			return nil, cherrors.Storage("failed to track fts doc id", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, cherrors.Storage("failed to commit chunk insert", err)
	}
	e.recordWrite()
	return ids, nil
}

// GetChunkByID returns the chunk with the given id, or nil if not found.
func (e *Engine) GetChunkByID(id int64) (*model.Chunk, error) {
	row := e.db.QueryRow(chunkSelectColumns+" FROM chunks WHERE id = ?", id)
	return scanChunk(row)
}

// GetChunksByFileID returns all chunks for fileID ordered by start_line.
func (e *Engine) GetChunksByFileID(fileID int64) ([]*model.Chunk, error) {
	rows, err := e.db.Query(chunkSelectColumns+" FROM chunks WHERE file_id = ? ORDER BY start_line", fileID)
	if err != nil {
		return nil, cherrors.Storage("failed to list chunks for file", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		c, err := scanChunkRows(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunksByIDs returns the chunks with the given ids, in no particular
// order, skipping any id that no longer exists. Used by the embedding
// service to fetch code for a batch of chunk ids via an explicit id list.
func (e *Engine) GetChunksByIDs(ids []int64) ([]*model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := e.db.Query(chunkSelectColumns+" FROM chunks WHERE id IN ("+strings.Join(placeholders, ",")+")", args...)
	if err != nil {
		return nil, cherrors.Storage("failed to list chunks by id", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		c, err := scanChunkRows(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteFileChunks deletes every chunk for fileID, deleting dependent
// embeddings first via an explicit id list (never a subquery), per the
// storage engine's cascade-completeness invariant.
func (e *Engine) DeleteFileChunks(fileID int64) error {
	tx, err := e.db.Begin()
	if err != nil {
		return cherrors.Storage("failed to begin delete transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	chunkIDs, err := chunkIDsForFileTx(tx, fileID)
	if err != nil {
		return err
	}
	if err := deleteEmbeddingsForChunksTx(tx, e.knownDims(), chunkIDs); err != nil {
		return err
	}
	if err := deleteFTSRowsTx(tx, chunkIDs); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE file_id = ?", fileID); err != nil {
		return cherrors.Storage("failed to delete chunks", err)
	}
	if err := tx.Commit(); err != nil {
		return cherrors.Storage("failed to commit chunk deletion", err)
	}

	for _, id := range chunkIDs {
		e.removeFromVectorIndexes(id)
	}
	e.recordWrite()
	return nil
}

// DeleteChunk deletes a single chunk and its embeddings.
func (e *Engine) DeleteChunk(id int64) error {
	return e.DeleteChunksByID([]int64{id})
}

// DeleteChunksByID deletes the given chunk ids (and their embeddings/FTS
// rows) using explicit id lists.
func (e *Engine) DeleteChunksByID(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := e.db.Begin()
	if err != nil {
		return cherrors.Storage("failed to begin delete transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteEmbeddingsForChunksTx(tx, e.knownDims(), ids); err != nil {
		return err
	}
	if err := deleteFTSRowsTx(tx, ids); err != nil {
		return err
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE id IN ("+strings.Join(placeholders, ",")+")", args...); err != nil {
		return cherrors.Storage("failed to delete chunks", err)
	}

	if err := tx.Commit(); err != nil {
		return cherrors.Storage("failed to commit chunk deletion", err)
	}
	for _, id := range ids {
		e.removeFromVectorIndexes(id)
	}
	e.recordWrite()
	return nil
}

// UpdateChunk replaces the code/signature/line-range fields of an existing
// chunk row whose identity (file_id, start_byte, end_byte) is unchanged. The
// indexing coordinator's diff step does not call it; it applies its diff
// through ReplaceFileChunks.
func (e *Engine) UpdateChunk(id int64, code string, startLine, endLine int, signature string) error {
	_, err := e.db.Exec(`
		UPDATE chunks SET code = ?, start_line = ?, end_line = ?, size = ?,
			signature = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		code, startLine, endLine, len(code), nullableString(signature), id)
	if err != nil {
		return cherrors.Storage("failed to update chunk", err)
	}
	// FTS5 virtual tables don't support UPDATE/REPLACE on indexed columns;
	// delete then reinsert, same as the teacher's SQLiteBM25Index.Index.
	if _, err := e.db.Exec(`DELETE FROM fts_content WHERE doc_id = ?`, id); err != nil {
		return cherrors.Storage("failed to clear fts content", err)
	}
	if _, err := e.db.Exec(`INSERT INTO fts_content (doc_id, content) VALUES (?, ?)`, id, code); err != nil {
		return cherrors.Storage("failed to reindex fts content", err)
	}
	e.recordWrite()
	return nil
}

const chunkSelectColumns = `SELECT id, file_id, chunk_type, symbol, code, start_line, end_line,
	start_byte, end_byte, size, signature, language, created_at, updated_at`

func scanChunk(row *sql.Row) (*model.Chunk, error) {
	var c model.Chunk
	var chunkType, language string
	var symbol, signature sql.NullString
	err := row.Scan(&c.ID, &c.FileID, &chunkType, &symbol, &c.Code, &c.StartLine, &c.EndLine,
		&c.StartByte, &c.EndByte, &c.Size, &signature, &language, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, cherrors.Storage("failed to scan chunk row", err)
	}
	c.ChunkType = model.ChunkType(chunkType)
	c.Language = model.Language(language)
	c.Symbol = symbol.String
	c.Signature = signature.String
	return &c, nil
}

func scanChunkRows(rows *sql.Rows) (*model.Chunk, error) {
	var c model.Chunk
	var chunkType, language string
	var symbol, signature sql.NullString
	err := rows.Scan(&c.ID, &c.FileID, &chunkType, &symbol, &c.Code, &c.StartLine, &c.EndLine,
		&c.StartByte, &c.EndByte, &c.Size, &signature, &language, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, cherrors.Storage("failed to scan chunk row", err)
	}
	c.ChunkType = model.ChunkType(chunkType)
	c.Language = model.Language(language)
	c.Symbol = symbol.String
	c.Signature = signature.String
	return &c, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deleteFTSRowsTx(tx *sql.Tx, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	in := strings.Join(placeholders, ",")
	if _, err := tx.Exec("DELETE FROM fts_content WHERE doc_id IN ("+in+")", args...); err != nil {
		return cherrors.Storage("failed to delete fts content rows", err)
	}
	if _, err := tx.Exec("DELETE FROM fts_doc_ids WHERE chunk_id IN ("+in+")", args...); err != nil {
		return cherrors.Storage("failed to delete fts doc id rows", err)
	}
	return nil
}
