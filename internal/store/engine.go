// Package store implements component B, the storage engine: a single-writer,
// multi-reader SQLite-backed store of files, chunks and per-dimension
// embedding tables, each with its own in-process HNSW vector index.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// checkpointEveryOps and checkpointEveryInterval gate the WAL checkpoint
// cadence: a checkpoint fires after whichever threshold is crossed first.
const (
	checkpointEveryOps      = 100
	checkpointEveryInterval = 300 * time.Second
)

// Engine is the storage engine. It owns one SQLite connection (single-writer:
// MaxOpenConns is pinned to 1) and one VectorIndex per embedding dimension
// encountered so far. Safe for concurrent use.
type Engine struct {
	db   *sql.DB
	path string
	lock *flock.Flock

	mu      sync.RWMutex // guards vectorIndexes and schema changes
	vectors map[int]*VectorIndex

	writeOps      atomic.Int64
	lastCheckpoint atomic.Int64 // unix seconds

	closed bool
}

// Open creates or opens the storage engine at path (a file path, or ":memory:"
// for an ephemeral in-process store used by tests). It acquires an advisory
// lock beside the database file to enforce the single-writer invariant across
// process restarts, per the supplemented single-instance-lock feature.
func Open(path string) (*Engine, error) {
	e := &Engine{path: path, vectors: make(map[int]*VectorIndex)}
	e.lastCheckpoint.Store(time.Now().Unix())

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, cherrors.Storage("failed to create database directory", err)
		}

		lockPath := filepath.Join(dir, "db.lock")
		lk := flock.New(lockPath)
		locked, err := lk.TryLock()
		if err != nil {
			return nil, cherrors.Storage("failed to acquire storage lock", err)
		}
		if !locked {
			return nil, cherrors.Storage("database already open by another process", nil).
				WithDetail("lock_path", lockPath)
		}
		e.lock = lk
	}

	db, err := openWithRecovery(path)
	if err != nil {
		if e.lock != nil {
			_ = e.lock.Unlock()
		}
		return nil, err
	}
	e.db = db

	if err := initSchema(db); err != nil {
		_ = db.Close()
		if e.lock != nil {
			_ = e.lock.Unlock()
		}
		return nil, err
	}

	if err := e.loadVectorIndexes(); err != nil {
		_ = db.Close()
		if e.lock != nil {
			_ = e.lock.Unlock()
		}
		return nil, err
	}

	return e, nil
}

// Reconnect closes and reopens the underlying connection in place, so that
// subsequent reads observe every previously committed write. It does not
// require an explicit begin/commit to reset query state; that guarantee is
// provided by reopening the connection outright (see DESIGN.md Open
// Questions #1).
func (e *Engine) Reconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := forceCheckpoint(e.db); err != nil {
		slog.Warn("checkpoint before reconnect failed", slog.String("error", err.Error()))
	}
	if err := e.db.Close(); err != nil {
		return cherrors.Storage("failed to close connection before reconnect", err)
	}

	db, err := openWithRecovery(e.path)
	if err != nil {
		return err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return err
	}
	e.db = db
	return nil
}

// Close forces a final checkpoint, closes the connection and releases the
// advisory lock.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	if err := forceCheckpoint(e.db); err != nil {
		firstErr = cherrors.Storage("checkpoint on close failed", err)
	}
	if err := e.db.Close(); err != nil && firstErr == nil {
		firstErr = cherrors.Storage("failed to close database", err)
	}
	if e.lock != nil {
		if err := e.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = cherrors.Storage("failed to release storage lock", err)
		}
	}
	return firstErr
}

// Flush forces a WAL checkpoint immediately, resetting the periodic
// checkpoint counters. Used by the realtime watcher after a successful
// file process so the change is visible to readers without waiting for
// the next periodic checkpoint.
func (e *Engine) Flush() error {
	if err := forceCheckpoint(e.db); err != nil {
		return cherrors.Storage("failed to flush storage", err)
	}
	e.writeOps.Store(0)
	e.lastCheckpoint.Store(time.Now().Unix())
	return nil
}

// recordWrite increments the write-op counter and checkpoints when either
// threshold (op count or wall-clock interval) has been crossed.
func (e *Engine) recordWrite() {
	n := e.writeOps.Add(1)
	last := e.lastCheckpoint.Load()
	elapsed := time.Since(time.Unix(last, 0))
	if n >= checkpointEveryOps || elapsed >= checkpointEveryInterval {
		if err := forceCheckpoint(e.db); err != nil {
			slog.Warn("periodic checkpoint failed", slog.String("error", err.Error()))
			return
		}
		e.writeOps.Store(0)
		e.lastCheckpoint.Store(time.Now().Unix())
	}
}

// vectorIndexFor returns the VectorIndex for dims, creating the backing table
// and a fresh HNSW graph on first use.
func (e *Engine) vectorIndexFor(dims int, metric string) (*VectorIndex, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if vi, ok := e.vectors[dims]; ok {
		return vi, nil
	}

	if err := ensureEmbeddingsTable(e.db, dims); err != nil {
		return nil, err
	}
	vi := NewVectorIndex(dims, metric)
	if err := e.hydrateVectorIndex(vi, dims); err != nil {
		return nil, err
	}
	e.vectors[dims] = vi
	return vi, nil
}

// hydrateVectorIndex rebuilds an in-memory HNSW graph from the rows already
// persisted in embeddings_{dims}, used both on first touch of a dimension and
// after WAL-involving corruption recovery (see recovery.go).
func (e *Engine) hydrateVectorIndex(vi *VectorIndex, dims int) error {
	rows, err := e.db.Query(fmt.Sprintf(
		`SELECT id, chunk_id, embedding FROM %s`, model.EmbeddingsTableName(dims)))
	if err != nil {
		return cherrors.Storage("failed to read embeddings for index hydration", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, chunkID int64
		var blob []byte
		if err := rows.Scan(&id, &chunkID, &blob); err != nil {
			return cherrors.Storage("failed to scan embedding row during hydration", err)
		}
		vec, err := decodeVector(blob, dims)
		if err != nil {
			return err
		}
		if err := vi.Add(uint64(chunkID), vec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// loadVectorIndexes rebuilds a VectorIndex for every dimension already
// present in the schema, used on Open so existing data is searchable
// immediately without a reindex.
func (e *Engine) loadVectorIndexes() error {
	dimsList, err := existingEmbeddingDims(e.db)
	if err != nil {
		return err
	}
	for _, dims := range dimsList {
		if _, err := e.vectorIndexFor(dims, "cosine"); err != nil {
			return err
		}
	}
	return nil
}
