package store

import (
	"context"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// TotalChunks returns the indexed chunk count, used by the research engine
// to pick its BFS depth limit from corpus size (research.StatsProvider).
func (e *Engine) TotalChunks(_ context.Context) (int, error) {
	var n int
	if err := e.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, cherrors.Storage("failed to count chunks", err)
	}
	return n, nil
}

// GetStats aggregates row counts across files, chunks, and every per-dim
// embeddings table, and the set of distinct providers that have produced
// embeddings.
func (e *Engine) GetStats() (model.Stats, error) {
	var stats model.Stats

	if err := e.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&stats.Files); err != nil {
		return stats, cherrors.Storage("failed to count files", err)
	}
	if err := e.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&stats.Chunks); err != nil {
		return stats, cherrors.Storage("failed to count chunks", err)
	}

	dimsList, err := existingEmbeddingDims(e.db)
	if err != nil {
		return stats, err
	}

	providers := map[string]struct{}{}
	for _, dims := range dimsList {
		table := model.EmbeddingsTableName(dims)

		var count int
		if err := e.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return stats, cherrors.Storage("failed to count embeddings", err).WithDetail("table", table)
		}
		stats.Embeddings += count

		rows, err := e.db.Query("SELECT DISTINCT provider FROM " + table)
		if err != nil {
			return stats, cherrors.Storage("failed to list providers", err).WithDetail("table", table)
		}
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return stats, cherrors.Storage("failed to scan provider", err)
			}
			providers[p] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return stats, cherrors.Storage("failed to iterate providers", err)
		}
	}

	for p := range providers {
		stats.Providers = append(stats.Providers, p)
	}
	return stats, nil
}
