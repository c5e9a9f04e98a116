package store

import (
	"database/sql"
	"strconv"
	"time"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
)

// State keys for the `state` KV table. Grounded on the teacher's
// StateKeyCheckpoint* / StateKeyIndexDimension constants, which in turn
// mirror the Python original's duckdb_provider.py checkpoint keys — see
// SPEC_FULL §12 "Checkpoint-based resumable indexing".
const (
	stateKeyCheckpointStage     = "checkpoint_stage"
	stateKeyCheckpointTotal     = "checkpoint_total"
	stateKeyCheckpointEmbedded  = "checkpoint_embedded"
	stateKeyCheckpointTimestamp = "checkpoint_timestamp"
	stateKeyCheckpointModel     = "checkpoint_embedder_model"

	stateKeyIndexDimension = "index_embedding_dimension"
	stateKeyIndexModel     = "index_embedding_model"
	stateKeyIndexProvider  = "index_embedding_provider"
)

// IndexCheckpoint is the saved progress of an in-flight process_directory
// run, letting a killed run report its last-seen stage on next startup.
type IndexCheckpoint struct {
	Stage         string // "scanning", "chunking", "embedding", "indexing", "complete"
	Total         int
	EmbeddedCount int
	Timestamp     time.Time
	EmbedderModel string
}

// getState reads a single state key, returning "", false if absent.
func (e *Engine) getState(key string) (string, bool, error) {
	var value string
	err := e.db.QueryRow("SELECT value FROM state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, cherrors.Storage("failed to read state key", err).WithDetail("key", key)
	}
	return value, true, nil
}

func (e *Engine) setStateTx(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return cherrors.Storage("failed to write state key", err).WithDetail("key", key)
	}
	return nil
}

// SaveIndexCheckpoint persists indexing-stage progress so a killed
// process_directory run can report where it left off.
func (e *Engine) SaveIndexCheckpoint(stage string, total, embeddedCount int, embedderModel string) error {
	tx, err := e.db.Begin()
	if err != nil {
		return cherrors.Storage("failed to begin checkpoint save", err)
	}
	defer tx.Rollback() //nolint:errcheck

	entries := map[string]string{
		stateKeyCheckpointStage:     stage,
		stateKeyCheckpointTotal:     strconv.Itoa(total),
		stateKeyCheckpointEmbedded:  strconv.Itoa(embeddedCount),
		stateKeyCheckpointTimestamp: time.Now().UTC().Format(time.RFC3339),
		stateKeyCheckpointModel:     embedderModel,
	}
	for k, v := range entries {
		if err := e.setStateTx(tx, k, v); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return cherrors.Storage("failed to commit checkpoint save", err)
	}
	e.recordWrite()
	return nil
}

// LoadIndexCheckpoint returns the last saved checkpoint, or nil if none has
// been recorded yet.
func (e *Engine) LoadIndexCheckpoint() (*IndexCheckpoint, error) {
	stage, ok, err := e.getState(stateKeyCheckpointStage)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	cp := &IndexCheckpoint{Stage: stage}
	if v, ok, err := e.getState(stateKeyCheckpointTotal); err != nil {
		return nil, err
	} else if ok {
		cp.Total, _ = strconv.Atoi(v)
	}
	if v, ok, err := e.getState(stateKeyCheckpointEmbedded); err != nil {
		return nil, err
	} else if ok {
		cp.EmbeddedCount, _ = strconv.Atoi(v)
	}
	if v, ok, err := e.getState(stateKeyCheckpointTimestamp); err != nil {
		return nil, err
	} else if ok {
		cp.Timestamp, _ = time.Parse(time.RFC3339, v)
	}
	if v, ok, err := e.getState(stateKeyCheckpointModel); err != nil {
		return nil, err
	} else if ok {
		cp.EmbedderModel = v
	}
	return cp, nil
}

// ClearIndexCheckpoint removes the checkpoint, marking the last run complete.
func (e *Engine) ClearIndexCheckpoint() error {
	tx, err := e.db.Begin()
	if err != nil {
		return cherrors.Storage("failed to begin checkpoint clear", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, key := range []string{stateKeyCheckpointStage, stateKeyCheckpointTotal,
		stateKeyCheckpointEmbedded, stateKeyCheckpointTimestamp, stateKeyCheckpointModel} {
		if _, err := tx.Exec("DELETE FROM state WHERE key = ?", key); err != nil {
			return cherrors.Storage("failed to clear checkpoint key", err).WithDetail("key", key)
		}
	}
	if err := tx.Commit(); err != nil {
		return cherrors.Storage("failed to commit checkpoint clear", err)
	}
	e.recordWrite()
	return nil
}

// RecordActiveEmbedder stores the (provider, model, dims) triple used to
// build the currently active vector index, per the dimension/model
// compatibility bookkeeping supplement.
func (e *Engine) RecordActiveEmbedder(provider, modelName string, dims int) error {
	tx, err := e.db.Begin()
	if err != nil {
		return cherrors.Storage("failed to begin embedder record", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := e.setStateTx(tx, stateKeyIndexProvider, provider); err != nil {
		return err
	}
	if err := e.setStateTx(tx, stateKeyIndexModel, modelName); err != nil {
		return err
	}
	if err := e.setStateTx(tx, stateKeyIndexDimension, strconv.Itoa(dims)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return cherrors.Storage("failed to commit embedder record", err)
	}
	e.recordWrite()
	return nil
}

// ActiveEmbedder returns the (provider, model, dims) triple last recorded by
// RecordActiveEmbedder, and whether one has ever been recorded.
func (e *Engine) ActiveEmbedder() (provider, modelName string, dims int, ok bool, err error) {
	provider, ok, err = e.getState(stateKeyIndexProvider)
	if err != nil || !ok {
		return "", "", 0, false, err
	}
	modelName, _, err = e.getState(stateKeyIndexModel)
	if err != nil {
		return "", "", 0, false, err
	}
	dimsStr, _, err := e.getState(stateKeyIndexDimension)
	if err != nil {
		return "", "", 0, false, err
	}
	dims, convErr := strconv.Atoi(dimsStr)
	if convErr != nil {
		return "", "", 0, false, cherrors.Storage("corrupt stored embedding dimension", convErr)
	}
	return provider, modelName, dims, true, nil
}

// IsEmbedderCompatible reports whether (provider, model, dims) matches the
// recorded active embedder, or true if none has been recorded yet (a fresh
// index has nothing to conflict with). A mismatch is not itself an error —
// callers (the embedding service, the protocol server's get_stats) decide
// whether to warn or reject based on it.
func (e *Engine) IsEmbedderCompatible(provider, modelName string, dims int) (bool, error) {
	activeProvider, activeModel, activeDims, ok, err := e.ActiveEmbedder()
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return activeProvider == provider && activeModel == modelName && activeDims == dims, nil
}
