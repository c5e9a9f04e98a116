// Package index implements the indexing coordinator: the component that
// turns a file on disk into persisted chunks, diffing against whatever was
// indexed before so unchanged chunks keep their embeddings and ids.
package index

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ofriw/chunkhound-sub000/internal/config"
	"github.com/ofriw/chunkhound-sub000/internal/discovery"
	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/model"
	"github.com/ofriw/chunkhound-sub000/internal/parsing"
	"github.com/ofriw/chunkhound-sub000/internal/store"
)

// Status is the outcome of processing a single file.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusUpToDate  Status = "up_to_date"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

// FileResult reports the outcome of ProcessFile.
type FileResult struct {
	Path       string
	Status     Status
	Chunks     int
	Embeddings int
	Error      string
	// InsertedChunkIDs holds the ids of newly inserted or changed chunks,
	// populated whether or not embedding was enqueued for them. A caller
	// running with SkipEmbeddings uses this to re-enqueue the whole
	// directory's worth of chunks for embedding in one pass afterward,
	// rather than paying per-file embedding latency during a bulk scan.
	InsertedChunkIDs []int64
}

// DirectoryResult aggregates ProcessFile outcomes across a directory run.
type DirectoryResult struct {
	FilesSeen      int
	FilesIndexed   int
	FilesUpToDate  int
	FilesSkipped   int
	FilesErrored   int
	FilesOrphaned  int
	TotalChunks    int
	TotalEmbedded  int
	Errors         []FileResult
}

// ProcessOptions controls a single ProcessFile call.
type ProcessOptions struct {
	// SkipEmbeddings suppresses ProcessFile's per-file embedding-enqueue
	// step (the CLI's --no-embeddings flag sets it). ProcessDirectory still
	// enqueues every inserted chunk in one call after the walk completes.
	SkipEmbeddings bool
	// Force bypasses the change-gating step and reprocesses unconditionally.
	Force bool
}

// EmbedEnqueuer is the indexing coordinator's view of the embedding service:
// schedule the given chunk ids for embedding. Defined locally (rather than
// importing the embedding package) so this package has no hard dependency on
// which embedding backend is wired in; a nil EmbedEnqueuer makes embedding
// enqueue a no-op, which is how tests exercise ProcessFile in isolation.
type EmbedEnqueuer interface {
	Enqueue(ctx context.Context, chunkIDs []int64) error
}

// Coordinator turns discovered files into persisted, diffed chunks.
type Coordinator struct {
	Engine    *store.Engine
	Parser    parsing.Parser
	Discovery *discovery.Cache
	Embedder  EmbedEnqueuer
	Config    config.IndexingConfig
}

// NewCoordinator constructs a Coordinator. Embedder may be nil.
func NewCoordinator(engine *store.Engine, parser parsing.Parser, disc *discovery.Cache, embedder EmbedEnqueuer, cfg config.IndexingConfig) *Coordinator {
	return &Coordinator{Engine: engine, Parser: parser, Discovery: disc, Embedder: embedder, Config: cfg}
}

// ProcessFile indexes a single file, identified by its path relative to
// root. It never returns a non-nil error for a condition the directory walk
// should tolerate (missing file, parse failure, oversized file); those are
// reported via FileResult.Status/Error instead. A non-nil error return means
// something broke that ProcessDirectory should treat as fatal (a storage
// engine failure, most commonly).
func (c *Coordinator) ProcessFile(ctx context.Context, root, relPath string, opts ProcessOptions) (FileResult, error) {
	result := FileResult{Path: relPath}
	absPath := filepath.Join(root, relPath)

	info, err := os.Lstat(absPath)
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		return result, nil
	}
	if info.Mode()&os.ModeSymlink != 0 {
		result.Status = StatusSkipped
		return result, nil
	}

	language := DetectLanguage(relPath)

	maxSizeBytes := int64(c.Config.MaxFileSizeMB * 1024 * 1024)
	if maxSizeBytes > 0 && info.Size() > maxSizeBytes {
		slog.Warn("skipping oversized file", slog.String("path", relPath), slog.Int64("size", info.Size()))
		result.Status = StatusSkipped
		return result, nil
	}
	if isConfigLike(language) {
		thresholdBytes := int64(c.Config.ConfigFileSizeThresholdKB * 1024)
		if thresholdBytes > 0 && info.Size() > thresholdBytes {
			slog.Debug("skipping oversized config file", slog.String("path", relPath), slog.Int64("size", info.Size()))
			result.Status = StatusSkipped
			return result, nil
		}
	}

	existing, err := c.Engine.GetFileByPath(relPath)
	if err != nil {
		return result, err
	}

	mtime := float64(info.ModTime().UnixNano()) / 1e9

	if existing != nil && !opts.Force && !c.Config.ForceReindex {
		sizeUnchanged := existing.SizeBytes == info.Size()
		mtimeUnchanged := math.Abs(existing.MTime-mtime) <= c.Config.MTimeEpsilonSeconds
		if sizeUnchanged && mtimeUnchanged && existing.Checksum != "" {
			if !c.Config.VerifyChecksumWhenMTimeEqual {
				result.Status = StatusUpToDate
				return result, nil
			}
			content, err := os.ReadFile(absPath)
			if err != nil {
				result.Status = StatusError
				result.Error = err.Error()
				return result, nil
			}
			if sampledChecksum(content, c.Config.ChecksumSampleKB) == existing.Checksum {
				result.Status = StatusUpToDate
				return result, nil
			}
			// Checksum disagrees despite matching size/mtime: fall through
			// and reprocess using the content already read.
			return c.processContent(ctx, relPath, content, language, info, mtime, existing, opts, result)
		}
		// No stored checksum yet: reprocess once so this and future runs
		// have one to compare against, per the gating contract.
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		return result, nil
	}
	return c.processContent(ctx, relPath, content, language, info, mtime, existing, opts, result)
}

func (c *Coordinator) processContent(ctx context.Context, relPath string, content []byte, language model.Language, info os.FileInfo, mtime float64, existing *model.File, opts ProcessOptions, result FileResult) (FileResult, error) {
	parseCtx := ctx
	var cancel context.CancelFunc
	sizeKB := float64(len(content)) / 1024
	if c.Config.PerFileTimeoutSeconds > 0 && sizeKB >= c.Config.PerFileTimeoutMinSizeKB {
		parseCtx, cancel = context.WithTimeout(ctx, time.Duration(c.Config.PerFileTimeoutSeconds*float64(time.Second)))
		defer cancel()
	}

	parsed, err := c.Parser.Parse(parseCtx, relPath, content, language)
	if err != nil {
		if parseCtx.Err() != nil {
			result.Status = StatusError
			result.Error = cherrors.ParseTimeout("parser exceeded per-file timeout", err).Error()
		} else {
			result.Status = StatusError
			result.Error = cherrors.Parse("failed to parse file", err).Error()
		}
		return result, nil
	}

	var existingChunks []*model.Chunk
	if existing != nil {
		existingChunks, err = c.Engine.GetChunksByFileID(existing.ID)
		if err != nil {
			return result, err
		}
	}

	keep, insert, deleteIDs := diffChunks(existingChunks, parsed, language)

	checksum := sampledChecksum(content, c.Config.ChecksumSampleKB)
	file := &model.File{
		Path:      relPath,
		SizeBytes: info.Size(),
		MTime:     mtime,
		Language:  language,
		Checksum:  checksum,
	}

	_, insertedIDs, err := c.Engine.ReplaceFileChunks(file, insert, deleteIDs)
	if err != nil {
		return result, err
	}
	result.InsertedChunkIDs = insertedIDs

	if !opts.SkipEmbeddings && c.Embedder != nil && len(insertedIDs) > 0 {
		if err := c.Embedder.Enqueue(ctx, insertedIDs); err != nil {
			slog.Warn("failed to enqueue embeddings", slog.String("path", relPath), slog.String("error", err.Error()))
		} else {
			result.Embeddings = len(insertedIDs)
		}
	}

	result.Status = StatusSuccess
	result.Chunks = keep + len(insert)
	return result, nil
}

// diffChunks compares freshly parsed chunks against a file's existing
// chunks by content identity (chunk_type, symbol, start_byte, end_byte,
// code), per the coordinator's diff-by-tuple contract. It returns the count
// of unchanged chunks left untouched, the new/changed chunks to insert, and
// the ids of existing chunks that no longer appear and should be deleted.
func diffChunks(existingChunks []*model.Chunk, parsed []parsing.ParsedChunk, language model.Language) (keep int, insert []*model.Chunk, deleteIDs []int64) {
	byHash := make(map[string][]*model.Chunk, len(existingChunks))
	for _, ec := range existingChunks {
		h := ec.ContentHash()
		byHash[h] = append(byHash[h], ec)
	}

	for _, pc := range parsed {
		candidate := model.Chunk{
			ChunkType: pc.ChunkType,
			Symbol:    pc.Symbol,
			StartByte: pc.StartByte,
			EndByte:   pc.EndByte,
			Code:      pc.Code,
		}
		h := candidate.ContentHash()
		if bucket, ok := byHash[h]; ok && len(bucket) > 0 {
			byHash[h] = bucket[1:]
			keep++
			continue
		}
		insert = append(insert, &model.Chunk{
			ChunkType: pc.ChunkType,
			Symbol:    pc.Symbol,
			Signature: pc.Signature,
			Code:      pc.Code,
			StartLine: pc.StartLine,
			EndLine:   pc.EndLine,
			StartByte: pc.StartByte,
			EndByte:   pc.EndByte,
			Language:  language,
		})
	}

	for _, bucket := range byHash {
		for _, ec := range bucket {
			deleteIDs = append(deleteIDs, ec.ID)
		}
	}
	return keep, insert, deleteIDs
}

// ProcessDirectory discovers indexable files under root via the discovery
// cache, processes each one independently, and — when Config.Cleanup is set
// — removes tracked files that the discovery scan no longer returns. A
// per-file error never aborts the run; only a ProcessFile error return
// (storage failure, context cancellation) does.
func (c *Coordinator) ProcessDirectory(ctx context.Context, root string, opts ProcessOptions) (DirectoryResult, error) {
	var dr DirectoryResult

	relPaths, err := c.Discovery.ListFiles(root, c.Config.Include, c.Config.Exclude)
	if err != nil {
		return dr, cherrors.IO("failed to discover files", err)
	}

	seen := make(map[string]bool, len(relPaths))
	var deferredEmbedIDs []int64
	for _, relPath := range relPaths {
		if err := ctx.Err(); err != nil {
			return dr, err
		}
		seen[relPath] = true

		result, err := c.ProcessFile(ctx, root, relPath, opts)
		if err != nil {
			return dr, err
		}
		dr.FilesSeen++
		dr.TotalChunks += result.Chunks
		dr.TotalEmbedded += result.Embeddings
		if opts.SkipEmbeddings {
			deferredEmbedIDs = append(deferredEmbedIDs, result.InsertedChunkIDs...)
		}
		switch result.Status {
		case StatusSuccess:
			dr.FilesIndexed++
		case StatusUpToDate:
			dr.FilesUpToDate++
		case StatusSkipped:
			dr.FilesSkipped++
		case StatusError:
			dr.FilesErrored++
			dr.Errors = append(dr.Errors, result)
		}
	}

	if c.Config.Cleanup {
		orphaned, err := c.cleanupOrphans(seen)
		if err != nil {
			return dr, err
		}
		dr.FilesOrphaned = orphaned
	}

	// Initial-scan priority: embedding was skipped per-file to keep scan
	// throughput off the embedding provider's latency; now that the scan is
	// done, enqueue everything collected in one pass at embed priority.
	if opts.SkipEmbeddings && c.Embedder != nil && len(deferredEmbedIDs) > 0 {
		if err := c.Embedder.Enqueue(ctx, deferredEmbedIDs); err != nil {
			slog.Warn("failed to enqueue post-scan embeddings", slog.Int("chunks", len(deferredEmbedIDs)), slog.String("error", err.Error()))
		} else {
			dr.TotalEmbedded += len(deferredEmbedIDs)
		}
	}

	return dr, nil
}

// cleanupOrphans deletes every tracked file whose path isn't in seen.
func (c *Coordinator) cleanupOrphans(seen map[string]bool) (int, error) {
	tracked, err := c.Engine.ListFilePaths()
	if err != nil {
		return 0, err
	}

	var removed int
	for _, path := range tracked {
		if seen[path] {
			continue
		}
		if err := c.Engine.DeleteFileCompletely(path); err != nil {
			return removed, err
		}
		removed++
		slog.Debug("removed orphaned file from index", slog.String("path", path))
	}
	return removed, nil
}
