package store

import (
	"database/sql"
	"errors"
	"path/filepath"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// InsertFile upserts a file row by path and returns its id. Name and
// extension are derived from path when not already set on f.
func (e *Engine) InsertFile(f *model.File) (int64, error) {
	if f.Name == "" {
		f.Name = filepath.Base(f.Path)
	}
	if f.Extension == "" {
		f.Extension = filepath.Ext(f.Path)
	}
	if f.Language == "" {
		f.Language = model.LanguageUnknown
	}

	res, err := e.db.Exec(`
		INSERT INTO files (path, name, extension, size, modified_time, language, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			modified_time = excluded.modified_time,
			language = excluded.language,
			checksum = excluded.checksum,
			updated_at = CURRENT_TIMESTAMP
	`, f.Path, f.Name, f.Extension, f.SizeBytes, f.MTime, string(f.Language), f.Checksum)
	if err != nil {
		return 0, cherrors.Storage("failed to upsert file", err).WithDetail("path", f.Path)
	}
	e.recordWrite()

	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		// ON CONFLICT UPDATE doesn't report LastInsertId on some drivers; look it up.
		row, getErr := e.GetFileByPath(f.Path)
		if getErr != nil {
			return 0, getErr
		}
		return row.ID, nil
	}
	return id, nil
}

// GetFileByPath returns the file at path, or nil if no such file is tracked.
func (e *Engine) GetFileByPath(path string) (*model.File, error) {
	row := e.db.QueryRow(`
		SELECT id, path, name, extension, size, modified_time, language, checksum, created_at, updated_at
		FROM files WHERE path = ?`, path)
	return scanFile(row)
}

// GetFileByID returns the file with the given id, or nil if not found.
func (e *Engine) GetFileByID(id int64) (*model.File, error) {
	row := e.db.QueryRow(`
		SELECT id, path, name, extension, size, modified_time, language, checksum, created_at, updated_at
		FROM files WHERE id = ?`, id)
	return scanFile(row)
}

func scanFile(row *sql.Row) (*model.File, error) {
	var f model.File
	var language string
	err := row.Scan(&f.ID, &f.Path, &f.Name, &f.Extension, &f.SizeBytes, &f.MTime,
		&language, &f.Checksum, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, cherrors.Storage("failed to scan file row", err)
	}
	f.Language = model.Language(language)
	return &f, nil
}

// UpdateFile updates size, mtime and/or checksum for an existing file id. A
// nil pointer leaves the corresponding column unchanged.
func (e *Engine) UpdateFile(id int64, size *int64, mtime *float64, checksum *string) error {
	if size == nil && mtime == nil && checksum == nil {
		return nil
	}
	setClauses := "updated_at = CURRENT_TIMESTAMP"
	args := []any{}
	if size != nil {
		setClauses = "size = ?, " + setClauses
		args = append([]any{*size}, args...)
	}
	if mtime != nil {
		setClauses = "modified_time = ?, " + setClauses
		args = append([]any{*mtime}, args...)
	}
	if checksum != nil {
		setClauses = "checksum = ?, " + setClauses
		args = append([]any{*checksum}, args...)
	}
	args = append(args, id)

	_, err := e.db.Exec("UPDATE files SET "+setClauses+" WHERE id = ?", args...)
	if err != nil {
		return cherrors.Storage("failed to update file", err)
	}
	e.recordWrite()
	return nil
}

// DeleteFileCompletely removes a file and, in order, its embeddings, its
// chunks, then the file row itself, using explicit chunk id lists rather
// than subqueries so the cascade can't silently skip rows.
func (e *Engine) DeleteFileCompletely(path string) error {
	f, err := e.GetFileByPath(path)
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}

	tx, err := e.db.Begin()
	if err != nil {
		return cherrors.Storage("failed to begin delete transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	chunkIDs, err := chunkIDsForFileTx(tx, f.ID)
	if err != nil {
		return err
	}

	if err := deleteEmbeddingsForChunksTx(tx, e.knownDims(), chunkIDs); err != nil {
		return err
	}
	if err := deleteFTSRowsTx(tx, chunkIDs); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE file_id = ?", f.ID); err != nil {
		return cherrors.Storage("failed to delete chunks", err)
	}
	if _, err := tx.Exec("DELETE FROM files WHERE id = ?", f.ID); err != nil {
		return cherrors.Storage("failed to delete file", err)
	}

	if err := tx.Commit(); err != nil {
		return cherrors.Storage("failed to commit file deletion", err)
	}

	for _, id := range chunkIDs {
		e.removeFromVectorIndexes(id)
	}
	e.recordWrite()
	return nil
}

// ListFilePaths returns the path of every tracked file, used by the indexing
// coordinator's orphan-cleanup pass to find files that no longer exist on
// disk (or no longer match the include/exclude globs).
func (e *Engine) ListFilePaths() ([]string, error) {
	rows, err := e.db.Query("SELECT path FROM files")
	if err != nil {
		return nil, cherrors.Storage("failed to list file paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, cherrors.Storage("failed to scan file path", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func chunkIDsForFileTx(tx *sql.Tx, fileID int64) ([]int64, error) {
	rows, err := tx.Query("SELECT id FROM chunks WHERE file_id = ?", fileID)
	if err != nil {
		return nil, cherrors.Storage("failed to list chunk ids for file", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, cherrors.Storage("failed to scan chunk id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
