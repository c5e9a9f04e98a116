package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ofriw/chunkhound-sub000/internal/discovery"
	"github.com/ofriw/chunkhound-sub000/internal/gitignore"
	"github.com/ofriw/chunkhound-sub000/internal/index"
)

// renameGraceWindow is how long an unmatched fsnotify rename-from event
// waits for a paired create before it's resolved as a plain delete. Vanilla
// fsnotify exposes no inotify rename cookie to correlate the two halves of
// an atomic move, so pairing is done by arrival order within this window —
// true for the overwhelmingly common case of one rename in flight at a time
// (editor atomic saves, single mv/rename calls).
const renameGraceWindow = 50 * time.Millisecond

// HybridWatcher is the platform event source: fsnotify when available,
// falling back to polling. It normalizes raw OS events into FileEvents,
// resolves renames per the atomic-rename contract, filters by
// include/exclude globs and .gitignore, and feeds the result through a
// Debouncer.
type HybridWatcher struct {
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	useFsnotify bool
	debouncer   *Debouncer
	gitignore   *gitignore.Matcher
	errors      chan error
	stopCh      chan struct{}
	rootPath    string
	opts        Options

	mu             sync.RWMutex
	stopped        bool
	pendingRenames map[string]time.Time
	droppedErrors  atomic.Uint64
}

// NewHybridWatcher creates a watcher with the given options, preferring
// fsnotify and falling back to polling if it can't be initialized.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()

	h := &HybridWatcher{
		debouncer:      NewDebouncer(opts.DebounceWindow),
		gitignore:      gitignore.New(),
		errors:         make(chan error, 10),
		stopCh:         make(chan struct{}),
		opts:           opts,
		pendingRenames: make(map[string]time.Time),
	}

	if fsw, err := fsnotify.NewWatcher(); err == nil {
		h.fsWatcher = fsw
		h.useFsnotify = true
	} else {
		h.useFsnotify = false
		h.pollWatcher = NewPollingWatcher(opts.PollInterval)
	}

	return h, nil
}

// Start begins watching root. It blocks until the context is cancelled or
// Stop is called.
func (h *HybridWatcher) Start(ctx context.Context, root string) error {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("watcher: resolve root: %w", err)
	}
	h.rootPath = absPath

	if h.opts.RespectGitignore {
		h.loadGitignore()
	}

	if h.useFsnotify {
		return h.startFsnotify(ctx)
	}
	return h.startPolling(ctx)
}

func (h *HybridWatcher) startFsnotify(ctx context.Context) error {
	if err := h.addRecursive(h.rootPath); err != nil {
		return fmt.Errorf("watcher: add directories: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handleFsnotifyEvent(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) startPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case event, ok := <-h.pollWatcher.Events():
				if !ok {
					return
				}
				h.handlePollEvent(event)
			case err, ok := <-h.pollWatcher.Errors():
				if !ok {
					return
				}
				h.emitError(err)
			}
		}
	}()

	return h.pollWatcher.Start(ctx, h.rootPath)
}

// handlePollEvent filters and forwards a polling-sourced event. The
// polling watcher can't observe atomic renames as a single OS event (it
// only diffs directory snapshots), so a rename surfaces there as a
// delete+create pair already — no correlation step is needed.
func (h *HybridWatcher) handlePollEvent(event FileEvent) {
	if !h.indexable(event.Path, event.IsDir) {
		return
	}
	h.debouncer.Add(event)
}

// handleFsnotifyEvent converts, filters, and (for renames) correlates a raw
// fsnotify event before handing it to the debouncer.
func (h *HybridWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(h.rootPath, event.Name)
	if err != nil {
		relPath = event.Name
	}

	isDir := false
	if info, statErr := os.Stat(event.Name); statErr == nil {
		isDir = info.IsDir()
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		if isDir {
			_ = h.fsWatcher.Add(event.Name)
		}
		h.handleCreate(relPath, isDir)
	case event.Op&fsnotify.Write != 0:
		if h.indexable(relPath, isDir) {
			h.debouncer.Add(FileEvent{Path: relPath, Operation: OpModify, IsDir: isDir, Timestamp: time.Now()})
		}
	case event.Op&fsnotify.Remove != 0:
		if h.indexable(relPath, isDir) {
			h.debouncer.Add(FileEvent{Path: relPath, Operation: OpDelete, IsDir: isDir, Timestamp: time.Now()})
		}
	case event.Op&fsnotify.Rename != 0:
		h.handleRenameFrom(relPath, isDir)
	case event.Op&fsnotify.Chmod != 0:
		// no-op: not a content change
	}
}

// handleRenameFrom records the src half of a potential atomic move and
// schedules its grace-window resolution as a plain delete if no create
// ever pairs with it.
func (h *HybridWatcher) handleRenameFrom(relPath string, isDir bool) {
	h.mu.Lock()
	h.pendingRenames[relPath] = time.Now()
	h.mu.Unlock()

	time.AfterFunc(renameGraceWindow, func() {
		h.mu.Lock()
		_, stillPending := h.pendingRenames[relPath]
		if stillPending {
			delete(h.pendingRenames, relPath)
		}
		h.mu.Unlock()

		if stillPending && h.indexable(relPath, isDir) {
			h.debouncer.Add(FileEvent{Path: relPath, Operation: OpDelete, IsDir: isDir, Timestamp: time.Now()})
		}
	})
}

// handleCreate pairs an incoming create with the oldest pending rename-from
// (if any) and applies the atomic-rename three-way rule: both indexable
// emits delete(src)+create(dst); only dst indexable emits create(dst);
// only src indexable emits delete(src). A create with no pending rename is
// a plain creation.
func (h *HybridWatcher) handleCreate(relPath string, isDir bool) {
	h.mu.Lock()
	var srcPath string
	var oldest time.Time
	for p, t := range h.pendingRenames {
		if srcPath == "" || t.Before(oldest) {
			srcPath, oldest = p, t
		}
	}
	if srcPath != "" {
		delete(h.pendingRenames, srcPath)
	}
	h.mu.Unlock()

	now := time.Now()
	dstIndexable := h.indexable(relPath, isDir)

	if srcPath == "" {
		if dstIndexable {
			h.debouncer.Add(FileEvent{Path: relPath, Operation: OpCreate, IsDir: isDir, Timestamp: now})
		}
		return
	}

	srcIndexable := h.indexable(srcPath, isDir)
	switch {
	case srcIndexable && dstIndexable:
		h.debouncer.Add(FileEvent{Path: srcPath, Operation: OpDelete, IsDir: isDir, Timestamp: now})
		h.debouncer.Add(FileEvent{Path: relPath, Operation: OpCreate, IsDir: isDir, Timestamp: now})
	case dstIndexable:
		h.debouncer.Add(FileEvent{Path: relPath, Operation: OpCreate, IsDir: isDir, Timestamp: now})
	case srcIndexable:
		h.debouncer.Add(FileEvent{Path: srcPath, Operation: OpDelete, IsDir: isDir, Timestamp: now})
	}
}

// addRecursive adds root and every non-ignored subdirectory to the fsnotify
// watcher.
func (h *HybridWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		relPath, _ := filepath.Rel(h.rootPath, path)
		if relPath == "." {
			return h.fsWatcher.Add(path)
		}
		if h.shouldIgnoreDir(relPath) {
			return filepath.SkipDir
		}
		return h.fsWatcher.Add(path)
	})
}

// shouldIgnoreDir reports whether a directory should be excluded from
// watching entirely (and its subtree never walked).
func (h *HybridWatcher) shouldIgnoreDir(relPath string) bool {
	if relPath == ".git" || strings.HasPrefix(relPath, ".git"+string(filepath.Separator)) {
		return true
	}
	if relPath == ".chunkhound" || strings.HasPrefix(relPath, ".chunkhound"+string(filepath.Separator)) {
		return true
	}
	if len(h.opts.Exclude) > 0 && discovery.MatchesAnyGlob(relPath, h.opts.Exclude) {
		return true
	}
	if h.opts.RespectGitignore {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.gitignore.Match(relPath, true)
	}
	return false
}

// indexable reports whether a file path should produce events at all:
// never a directory, never under .git/.chunkhound, must pass the
// configured include/exclude globs (with no include globs, it must have a
// source extension index.DetectLanguage knows), and must not be gitignored
// when RespectGitignore is set.
func (h *HybridWatcher) indexable(relPath string, isDir bool) bool {
	if isDir || relPath == "." || relPath == "" {
		return false
	}
	relPath = filepath.ToSlash(relPath)
	if relPath == ".git" || strings.HasPrefix(relPath, ".git/") {
		return false
	}
	if relPath == ".chunkhound" || strings.HasPrefix(relPath, ".chunkhound/") {
		return false
	}

	if len(h.opts.Exclude) > 0 && discovery.MatchesAnyGlob(relPath, h.opts.Exclude) {
		return false
	}
	if len(h.opts.Include) > 0 {
		if !discovery.MatchesAnyGlob(relPath, h.opts.Include) {
			return false
		}
	} else if index.DetectLanguage(relPath) == "" {
		return false
	}

	if h.opts.RespectGitignore {
		h.mu.RLock()
		ignored := h.gitignore.Match(relPath, false)
		h.mu.RUnlock()
		if ignored {
			return false
		}
	}
	return true
}

// loadGitignore (re)builds the gitignore matcher from the root's .gitignore
// and every nested .gitignore under it.
func (h *HybridWatcher) loadGitignore() {
	h.mu.Lock()
	h.gitignore = gitignore.New()
	h.mu.Unlock()

	rootGitignore := filepath.Join(h.rootPath, ".gitignore")
	h.mu.Lock()
	if err := h.gitignore.AddFromFile(rootGitignore, ""); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load root .gitignore", slog.String("path", rootGitignore), slog.String("error", err.Error()))
	}
	h.mu.Unlock()

	_ = filepath.WalkDir(h.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == ".chunkhound" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ".gitignore" || path == rootGitignore {
			return nil
		}
		base, _ := filepath.Rel(h.rootPath, filepath.Dir(path))
		h.mu.Lock()
		if err := h.gitignore.AddFromFile(path, base); err != nil {
			slog.Warn("failed to load nested .gitignore", slog.String("path", path), slog.String("error", err.Error()))
		}
		h.mu.Unlock()
		return nil
	})
}

// emitError performs a non-blocking send of a sourcing error. Silently
// dropped on overflow; callers that care about every platform error should
// drain Errors() promptly.
func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return
	}
	select {
	case h.errors <- err:
	default:
		h.droppedErrors.Add(1)
	}
}

// Events returns the channel of debounced event batches.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.debouncer.Output()
}

// Errors returns the channel of non-fatal platform errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// Stop stops the watcher and releases the platform event source.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.mu.Unlock()

	close(h.stopCh)
	h.debouncer.Stop()

	if h.useFsnotify && h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.pollWatcher != nil {
		_ = h.pollWatcher.Stop()
	}
	close(h.errors)
	return nil
}

// WatcherType reports which event source is active, for diagnostics.
func (h *HybridWatcher) WatcherType() string {
	if h.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}
