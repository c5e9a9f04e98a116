package store

import (
	"database/sql"
	"fmt"
	"strings"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// InsertEmbedding inserts a single embedding, creating its backing table and
// vector index on first use of that dimensionality.
func (e *Engine) InsertEmbedding(emb *model.Embedding) (int64, error) {
	ids, err := e.InsertEmbeddingsBatch([]*model.Embedding{emb}, 1)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// InsertEmbeddingsBatch inserts embeddings in groups of batchSize, creating
// any missing embeddings_{dims} table and VectorIndex as new dimensions are
// encountered. Returns ids in input order. A batchSize <= 0 inserts all rows
// in one batch.
func (e *Engine) InsertEmbeddingsBatch(embeddings []*model.Embedding, batchSize int) ([]int64, error) {
	if len(embeddings) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = len(embeddings)
	}

	ids := make([]int64, len(embeddings))
	for start := 0; start < len(embeddings); start += batchSize {
		end := start + batchSize
		if end > len(embeddings) {
			end = len(embeddings)
		}
		if err := e.insertEmbeddingBatch(embeddings[start:end], ids[start:end]); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (e *Engine) insertEmbeddingBatch(batch []*model.Embedding, outIDs []int64) error {
	// Group by dims so each sub-batch targets a single embeddings_{D} table.
	byDims := make(map[int][]int)
	for i, emb := range batch {
		byDims[emb.Dims] = append(byDims[emb.Dims], i)
	}

	for dims, idxs := range byDims {
		vi, err := e.vectorIndexFor(dims, "cosine")
		if err != nil {
			return err
		}

		table := model.EmbeddingsTableName(dims)
		tx, err := e.db.Begin()
		if err != nil {
			return cherrors.Storage("failed to begin embedding insert transaction", err)
		}

		stmt, err := tx.Prepare(fmt.Sprintf(
			`INSERT INTO %s (chunk_id, provider, model, embedding, dims)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(chunk_id, provider, model) DO UPDATE SET embedding = excluded.embedding`, table))
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return cherrors.Storage("failed to prepare embedding insert", err)
		}

		for _, i := range idxs {
			emb := batch[i]
			if len(emb.Vector) != emb.Dims {
				tx.Rollback() //nolint:errcheck
				return ErrDimensionMismatch{Expected: emb.Dims, Got: len(emb.Vector)}
			}
			res, err := stmt.Exec(emb.ChunkID, emb.Provider, emb.Model, encodeVector(emb.Vector), emb.Dims)
			if err != nil {
				stmt.Close()
				tx.Rollback() //nolint:errcheck
				return cherrors.Storage("failed to insert embedding", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				stmt.Close()
				tx.Rollback() //nolint:errcheck
				return cherrors.Storage("failed to read inserted embedding id", err)
			}
			outIDs[i] = id
		}
		stmt.Close()

		if err := tx.Commit(); err != nil {
			return cherrors.Storage("failed to commit embedding insert", err)
		}

		for _, i := range idxs {
			emb := batch[i]
			if err := vi.Add(uint64(emb.ChunkID), emb.Vector); err != nil {
				return err
			}
		}
	}
	e.recordWrite()
	return nil
}

// GetEmbeddingByChunkID returns the embedding for (chunkID, provider, model)
// in the table for dims, or nil if absent.
func (e *Engine) GetEmbeddingByChunkID(chunkID int64, provider, modelName string, dims int) (*model.Embedding, error) {
	table := model.EmbeddingsTableName(dims)
	row := e.db.QueryRow(fmt.Sprintf(
		`SELECT id, chunk_id, provider, model, embedding, dims, created_at FROM %s
		 WHERE chunk_id = ? AND provider = ? AND model = ?`, table), chunkID, provider, modelName)

	var emb model.Embedding
	var blob []byte
	err := row.Scan(&emb.ID, &emb.ChunkID, &emb.Provider, &emb.Model, &blob, &emb.Dims, &emb.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cherrors.Storage("failed to scan embedding row", err)
	}
	vec, err := decodeVector(blob, emb.Dims)
	if err != nil {
		return nil, err
	}
	emb.Vector = vec
	return &emb, nil
}

// GetExistingEmbeddings returns the subset of chunkIDs that already have an
// embedding for (provider, model) in the table for dims.
func (e *Engine) GetExistingEmbeddings(chunkIDs []int64, provider, modelName string, dims int) (map[int64]bool, error) {
	result := make(map[int64]bool, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return result, nil
	}

	if !tableExists(e.db, model.EmbeddingsTableName(dims)) {
		return result, nil
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]any, 0, len(chunkIDs)+2)
	args = append(args, provider, modelName)
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}

	table := model.EmbeddingsTableName(dims)
	query := fmt.Sprintf(`SELECT chunk_id FROM %s WHERE provider = ? AND model = ? AND chunk_id IN (%s)`,
		table, strings.Join(placeholders, ","))
	rows, err := e.db.Query(query, args...)
	if err != nil {
		return nil, cherrors.Storage("failed to query existing embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, cherrors.Storage("failed to scan chunk id", err)
		}
		result[id] = true
	}
	return result, rows.Err()
}

// DeleteEmbeddingsByChunkID removes chunkID's embedding rows across every
// known per-dimension table and its vector index entries.
func (e *Engine) DeleteEmbeddingsByChunkID(chunkID int64) error {
	tx, err := e.db.Begin()
	if err != nil {
		return cherrors.Storage("failed to begin embedding delete transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteEmbeddingsForChunksTx(tx, e.knownDims(), []int64{chunkID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return cherrors.Storage("failed to commit embedding deletion", err)
	}
	e.removeFromVectorIndexes(chunkID)
	e.recordWrite()
	return nil
}

// knownDims returns the dimensions of every VectorIndex currently loaded.
func (e *Engine) knownDims() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	dims := make([]int, 0, len(e.vectors))
	for d := range e.vectors {
		dims = append(dims, d)
	}
	return dims
}

// removeFromVectorIndexes lazily deletes chunkID from every loaded
// VectorIndex; harmless if the chunk never had an embedding in a given
// dimension.
func (e *Engine) removeFromVectorIndexes(chunkID int64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, vi := range e.vectors {
		vi.Delete(uint64(chunkID))
	}
}

// deleteEmbeddingsForChunksTx deletes rows for chunkIDs from every
// embeddings_{D} table named in dimsList, within tx.
func deleteEmbeddingsForChunksTx(tx *sql.Tx, dimsList []int, chunkIDs []int64) error {
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

	for _, dims := range dimsList {
		table := model.EmbeddingsTableName(dims)
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE chunk_id IN ("+in+")", args...); err != nil {
			return cherrors.Storage("failed to delete embeddings", err).WithDetail("table", table)
		}
	}
	return nil
}

func tableExists(db *sql.DB, name string) bool {
	var count int
	_ = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = ?`, name).Scan(&count)
	return count > 0
}
