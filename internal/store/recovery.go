package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
)

// corruptionSignatures are substrings SQLite reports when the WAL can't be
// replayed, or the file is otherwise unreadable as a database. Grounded on
// the Python original's connection_manager.py, which matches on "Failure
// while replaying WAL file" for DuckDB; our SQLite equivalent is "database
// disk image is malformed" and the FTS5/vtab-capability variants reported
// by modernc.org/sqlite during a corrupted WAL replay.
var corruptionSignatures = []string{
	"database disk image is malformed",
	"file is not a database",
	"database corrupted",
}

// openWithRecovery opens path, running the two-phase WAL corruption
// recovery protocol if the initial open (or its first pragma) reports one of
// corruptionSignatures:
//
//  1. attempt recovery: open a scratch connection, force a checkpoint to
//     integrate the WAL into the main file, close it;
//  2. if that checkpoint (or the integrity check after it) fails, back up
//     and remove the WAL file; then open the database once more.
//
// The caller is responsible for rebuilding in-memory vector indexes after a
// recovery, since those are not part of the SQLite file itself.
func openWithRecovery(path string) (*sql.DB, error) {
	db, err := dialSQLite(path)
	if err == nil {
		if err2 := quickIntegrityCheck(db); err2 == nil {
			return db, nil
		} else if !isCorruption(err2) {
			return db, nil // non-fatal: e.g. fresh empty file, no tables yet
		} else {
			_ = db.Close()
			err = err2
		}
	}

	if !isCorruption(err) {
		return nil, cherrors.Storage("failed to open database", err)
	}

	slog.Warn("storage corruption detected, attempting recovery",
		slog.String("path", path), slog.String("error", err.Error()))

	if recErr := attemptScratchCheckpointRecovery(path); recErr != nil {
		slog.Warn("scratch checkpoint recovery failed, backing up WAL",
			slog.String("error", recErr.Error()))
		if bkErr := backupAndRemoveWAL(path); bkErr != nil {
			return nil, cherrors.Storage("failed to back up WAL during recovery", bkErr)
		}
	}

	db, err = dialSQLite(path)
	if err != nil {
		return nil, cherrors.Storage("database still unopenable after recovery", err)
	}
	return db, nil
}

// dialSQLite opens path with the connection-pool and pragma setup shared by
// every open attempt.
func dialSQLite(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// quickIntegrityCheck mirrors sqlite_bm25.go's validateSQLiteIntegrity: a
// fast PRAGMA integrity_check before trusting the connection.
func quickIntegrityCheck(db *sql.DB) error {
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func isCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range corruptionSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// attemptScratchCheckpointRecovery opens a second, scratch connection against
// the same file and forces a checkpoint, integrating any replayable WAL
// content into the main database file. This is the Go analogue of the
// Python original's "preload the vector extension, attach, checkpoint,
// detach" sequence; our vector index is an in-process HNSW graph rather than
// a SQLite extension, so there is nothing to preload — only the checkpoint
// itself is needed to make the WAL's committed pages durable before retry.
func attemptScratchCheckpointRecovery(path string) error {
	scratch, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer scratch.Close()

	if err := forceCheckpoint(scratch); err != nil {
		return err
	}
	return quickIntegrityCheck(scratch)
}

// backupAndRemoveWAL renames the -wal file aside (so it can be inspected
// post-mortem) and removes the -shm file, leaving a clean slate for the
// next open.
func backupAndRemoveWAL(path string) error {
	walPath := path + "-wal"
	shmPath := path + "-shm"

	if _, err := os.Stat(walPath); err == nil {
		if err := os.Rename(walPath, walPath+".corrupt"); err != nil {
			return err
		}
	}
	_ = os.Remove(shmPath)
	return nil
}
