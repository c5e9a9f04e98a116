// Package watcher implements component E, the realtime watcher: it watches
// a project root for filesystem changes and feeds normalized
// (created|modified|deleted, path) events to the indexing coordinator.
//
// The package layers three pieces:
//   - HybridWatcher, the platform event source: fsnotify when available,
//     falling back to polling for filesystems where fsnotify doesn't work
//     (network mounts, some container volume drivers). It also resolves
//     atomic renames into created/deleted pairs and applies include/exclude
//     and .gitignore filtering.
//   - Debouncer, which coalesces rapid per-path modify events within a
//     fixed window; created and deleted events bypass it.
//   - Service, which owns the bounded event queue, the single background
//     worker that drives the indexing coordinator, in-flight dedup, and
//     the post-process storage flush.
//
// Usage:
//
//	source, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	svc := watcher.NewService(source, coordinator, engine, projectRoot, 0)
//	return svc.Run(ctx) // blocks until ctx is cancelled or svc.Stop is called
package watcher
