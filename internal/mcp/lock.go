package mcp

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
)

// InstanceLock is an advisory, process-wide single-writer lock for one
// project root, distinct from store.Engine's own lock on the database file:
// this one is acquired at protocol-server startup so a second server
// instance fails fast with an actionable error rather than failing deep
// inside storage-engine construction.
type InstanceLock struct {
	fl *flock.Flock
}

// AcquireInstanceLock takes the advisory lock at <root>/.chunkhound/mcp.lock.
// This is a distinct file from store.Engine's own <root>/.chunkhound/db.lock:
// the two are acquired by the same process via separate flock file
// descriptions, so sharing one path would make the engine's own TryLock
// fail right after this one succeeds. Returns a StorageError if another
// instance already holds it.
func AcquireInstanceLock(root string) (*InstanceLock, error) {
	dir := filepath.Join(root, ".chunkhound")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cherrors.Storage("failed to create .chunkhound directory", err)
	}

	fl := flock.New(filepath.Join(dir, "mcp.lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, cherrors.Storage("failed to acquire instance lock", err)
	}
	if !locked {
		return nil, cherrors.Storage(fmt.Sprintf("another chunkhound instance already has %s locked", root), nil)
	}

	return &InstanceLock{fl: fl}, nil
}

// Release drops the lock. Safe to call on a nil receiver.
func (l *InstanceLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
