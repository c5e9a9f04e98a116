// Package discovery implements component A, the discovery cache: a cached
// recursive directory scan keyed by (root, include globs, exclude globs)
// with mtime-based invalidation and LRU eviction.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTTL is how long a cache entry remains valid without re-checking
// the root's mtime.
const DefaultTTL = 300 * time.Second

// DefaultCacheSize bounds the number of distinct (root, include, exclude)
// keys the LRU cache holds at once.
const DefaultCacheSize = 256

type cacheEntry struct {
	paths       []string
	rootMTime   time.Time
	cachedAt    time.Time
}

// Stats reports cumulative cache behavior.
type Stats struct {
	Hits         int64
	Misses       int64
	Evictions    int64
	Invalidations int64
}

// HitRate returns Hits / (Hits + Misses), or 0 when there have been no
// lookups at all.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is the discovery cache. Safe for concurrent use.
type Cache struct {
	ttl   time.Duration
	cache *lru.Cache[string, *cacheEntry]

	mu sync.Mutex // guards stats and serializes writes per process

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
	evictions     atomic.Int64
}

// New creates a discovery cache bounded at size entries, each valid for ttl.
// A size or ttl of zero uses the package defaults.
func New(size int, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{ttl: ttl}
	evictCallback := func(key string, value *cacheEntry) {
		c.evictions.Add(1)
	}
	cache, err := lru.NewWithEvict[string, *cacheEntry](size, evictCallback)
	if err != nil {
		return nil, fmt.Errorf("discovery: failed to create cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

// cacheKey builds the key for (root, include, exclude), sorting the glob
// lists so that order doesn't fragment the cache.
func cacheKey(root string, include, exclude []string) string {
	inc := append([]string(nil), include...)
	exc := append([]string(nil), exclude...)
	sort.Strings(inc)
	sort.Strings(exc)
	var b strings.Builder
	b.WriteString(root)
	b.WriteByte('\x00')
	b.WriteString(strings.Join(inc, ","))
	b.WriteByte('\x00')
	b.WriteString(strings.Join(exc, ","))
	return b.String()
}

// ListFiles returns the indexable file paths under root, using a cached
// result when valid. A cache entry is valid when its age is under the TTL
// and root's mtime has not advanced past the entry's stored mtime.
func (c *Cache) ListFiles(root string, include, exclude []string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("discovery: failed to resolve root %s: %w", root, err)
	}

	rootInfo, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("discovery: root unreadable: %w", err)
	}

	key := cacheKey(absRoot, include, exclude)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.cache.Get(key); ok {
		if time.Since(entry.cachedAt) < c.ttl && !rootInfo.ModTime().After(entry.rootMTime) {
			c.hits.Add(1)
			return entry.paths, nil
		}
		c.invalidations.Add(1)
	}

	c.misses.Add(1)
	paths, err := scan(absRoot, include, exclude)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, &cacheEntry{
		paths:     paths,
		rootMTime: rootInfo.ModTime(),
		cachedAt:  time.Now(),
	})
	return paths, nil
}

// Invalidate removes every cached entry rooted at root (all include/exclude
// combinations), forcing the next ListFiles call for that root to rescan.
func (c *Cache) Invalidate(root string) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.cache.Keys() {
		if strings.HasPrefix(key, absRoot+"\x00") {
			c.cache.Remove(key)
			c.invalidations.Add(1)
		}
	}
}

// Stats returns a snapshot of the cache's cumulative counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

// scan performs a single recursive, non-symlink-following directory walk,
// filtering by include/exclude globs. Hidden directories are skipped.
// Per-entry I/O errors are swallowed (recorded as a miss for that subtree,
// not surfaced); only a fatal error reading the root itself propagates.
func scan(absRoot string, include, exclude []string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == absRoot {
				return walkErr
			}
			return nil // inaccessible subtree: skip silently
		}

		if d.IsDir() {
			if path != absRoot && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			relPath, _ := filepath.Rel(absRoot, path)
			if relPath != "." && matchesAnyGlob(relPath, exclude) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		if matchesAnyGlob(relPath, exclude) {
			return nil
		}
		if len(include) > 0 && !matchesAnyGlob(relPath, include) {
			return nil
		}

		paths = append(paths, relPath)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: scan of %s failed: %w", absRoot, err)
	}
	return paths, nil
}

// MatchesAnyGlob reports whether relPath matches any of patterns, using the
// same glob semantics as the directory scan itself. Exported so other
// components needing the identical include/exclude behavior (the realtime
// watcher's event filter, in particular) don't reimplement glob matching.
func MatchesAnyGlob(relPath string, patterns []string) bool {
	return matchesAnyGlob(relPath, patterns)
}

// matchesAnyGlob reports whether relPath matches any of patterns, supporting
// "**/" prefixes, "/**" suffixes, and filepath.Match-style segment globs.
func matchesAnyGlob(relPath string, patterns []string) bool {
	relPath = filepath.ToSlash(relPath)
	base := filepath.Base(relPath)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if matchGlob(relPath, base, pattern) {
			return true
		}
	}
	return false
}

func matchGlob(relPath, base, pattern string) bool {
	switch {
	case strings.HasPrefix(pattern, "**/") && strings.HasSuffix(pattern, "/**"):
		middle := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		parts := strings.Split(relPath, "/")
		for _, part := range parts {
			if part == middle {
				return true
			}
		}
		return false

	case strings.HasPrefix(pattern, "**/"):
		suffix := strings.TrimPrefix(pattern, "**/")
		if strings.Contains(suffix, "/") {
			return strings.HasSuffix(relPath, suffix)
		}
		if ok, _ := filepath.Match(suffix, base); ok {
			return true
		}
		parts := strings.Split(relPath, "/")
		for _, part := range parts {
			if part == suffix {
				return true
			}
		}
		return false

	case strings.HasSuffix(pattern, "/**"):
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+"/")

	case strings.Contains(pattern, "/"):
		ok, _ := filepath.Match(pattern, relPath)
		return ok

	case pattern == "Makefile" || pattern == "makefile" || pattern == "GNUmakefile":
		return base == pattern

	default:
		ok, _ := filepath.Match(pattern, base)
		return ok
	}
}

// projectMarkerDetected reports whether dir looks like a VCS root; it is the
// per-directory check FindProjectRoot applies while walking upward.
func projectMarkerDetected(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}

// FindProjectRoot walks up from startDir looking for a .git directory,
// falling back to startDir itself if none is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("discovery: %w", err)
	}
	dir := absDir
	for {
		if projectMarkerDetected(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}
