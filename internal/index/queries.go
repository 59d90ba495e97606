package index

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/skydrive-app/skydrive/internal/dbx"
)

const fileColumns = `path, name, parent_path, size, mod_time, is_directory, is_synced, local_path, extension`

// Search looks up files whose name or path matches query. FTS5 prefix
// matching ordered by bm25 when available; otherwise a substring LIKE match
// ordered by name with zero relevance.
func (s *Store) Search(ctx context.Context, query string, limit int, includeFolders bool) ([]IndexedFile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	if s.fts {
		results, err := s.searchFTS(ctx, query, limit, includeFolders)
		if err == nil {
			return results, nil
		}
		s.logger.Debug(ctx, "fts query failed, falling back to substring search", "error", err)
	}
	return s.searchLike(ctx, query, limit, includeFolders)
}

func (s *Store) searchFTS(ctx context.Context, query string, limit int, includeFolders bool) ([]IndexedFile, error) {
	// Quotes neutralize FTS operator characters in user input; the trailing
	// star makes the last term a prefix match.
	match := `"` + strings.ReplaceAll(query, `"`, `""`) + `"*`

	q := `SELECT f.` + strings.ReplaceAll(fileColumns, ", ", ", f.") + `, bm25(files_fts) AS rank
		FROM files_fts JOIN files f ON f.id = files_fts.rowid
		WHERE files_fts MATCH ?`
	if !includeFolders {
		q += ` AND f.is_directory = 0`
	}
	q += ` ORDER BY rank LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, match, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IndexedFile
	for rows.Next() {
		var f IndexedFile
		if err := scanFile(rows, &f, true); err != nil {
			return nil, err
		}
		// bm25 returns more-negative-is-better; flip the sign so callers see
		// larger-is-better relevance.
		f.Relevance = -f.Relevance
		results = append(results, f)
	}
	return results, rows.Err()
}

func (s *Store) searchLike(ctx context.Context, query string, limit int, includeFolders bool) ([]IndexedFile, error) {
	pattern := "%" + query + "%"

	q := `SELECT ` + fileColumns + ` FROM files WHERE (name LIKE ? OR path LIKE ?)`
	if !includeFolders {
		q += ` AND is_directory = 0`
	}
	q += ` ORDER BY name LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var results []IndexedFile
	for rows.Next() {
		var f IndexedFile
		if err := scanFile(rows, &f, false); err != nil {
			return nil, err
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

// SearchWithFilters is a conjunctive filtered lookup: substring match plus
// extension allow-list, path prefix and sync-status restrictions.
func (s *Store) SearchWithFilters(ctx context.Context, f Filters) ([]IndexedFile, error) {
	var conds []string
	var args []any

	if q := strings.TrimSpace(f.Query); q != "" {
		conds = append(conds, `(name LIKE ? OR path LIKE ?)`)
		pattern := "%" + q + "%"
		args = append(args, pattern, pattern)
	}
	if len(f.Extensions) > 0 {
		placeholders := strings.Repeat("?,", len(f.Extensions))
		conds = append(conds, `extension IN (`+placeholders[:len(placeholders)-1]+`)`)
		for _, ext := range f.Extensions {
			args = append(args, strings.ToLower(strings.TrimPrefix(ext, ".")))
		}
	}
	if f.PathPrefix != "" {
		conds = append(conds, `(path = ? OR path LIKE ?)`)
		prefix := strings.Trim(f.PathPrefix, "/")
		args = append(args, prefix, prefix+"/%")
	}
	if f.SyncedOnly {
		conds = append(conds, `is_synced = 1`)
	}
	if f.CloudOnly {
		conds = append(conds, `is_synced = 0`)
	}

	q := `SELECT ` + fileColumns + ` FROM files`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += ` ORDER BY is_directory DESC, name LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("filtered search: %w", err)
	}
	defer rows.Close()

	var results []IndexedFile
	for rows.Next() {
		var file IndexedFile
		if err := scanFile(rows, &file, false); err != nil {
			return nil, err
		}
		results = append(results, file)
	}
	return results, rows.Err()
}

// DirectoryContents lists the direct children of parent, folders first.
func (s *Store) DirectoryContents(ctx context.Context, parent string) ([]IndexedFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE parent_path = ?
		 ORDER BY is_directory DESC, name`, strings.Trim(parent, "/"))
	if err != nil {
		return nil, fmt.Errorf("directory contents: %w", err)
	}
	defer rows.Close()

	var results []IndexedFile
	for rows.Next() {
		var f IndexedFile
		if err := scanFile(rows, &f, false); err != nil {
			return nil, err
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

// RecentFiles returns the most recently modified files, newest first.
func (s *Store) RecentFiles(ctx context.Context, limit int) ([]IndexedFile, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE is_directory = 0
		 ORDER BY mod_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent files: %w", err)
	}
	defer rows.Close()

	var results []IndexedFile
	for rows.Next() {
		var f IndexedFile
		if err := scanFile(rows, &f, false); err != nil {
			return nil, err
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

// AddOrUpdateFile upserts one row keyed by path, recomputing the derived
// parent path and extension, and stamps the partial-index time.
func (s *Store) AddOrUpdateFile(ctx context.Context, f *IndexedFile) error {
	if err := upsertFile(ctx, s.db, f); err != nil {
		return err
	}
	return s.setMeta(ctx, s.db, metaLastPartialIndex, time.Now().UTC().Format(time.RFC3339))
}

func upsertFile(ctx context.Context, q dbx.DBTX, f *IndexedFile) error {
	f.Path = strings.Trim(f.Path, "/")
	if f.Name == "" {
		f.Name = path.Base(f.Path)
	}
	f.ParentPath = parentOf(f.Path)
	f.Extension = extensionOf(f.Name, f.IsDirectory)

	_, err := q.ExecContext(ctx,
		`INSERT INTO files (path, name, parent_path, size, mod_time, is_directory, is_synced, local_path, extension)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			name=excluded.name, parent_path=excluded.parent_path, size=excluded.size,
			mod_time=excluded.mod_time, is_directory=excluded.is_directory,
			is_synced=excluded.is_synced, local_path=excluded.local_path,
			extension=excluded.extension`,
		f.Path, f.Name, f.ParentPath, f.Size, f.ModTime,
		boolToInt(f.IsDirectory), boolToInt(f.IsSynced), f.LocalPath, f.Extension)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", f.Path, err)
	}
	return nil
}

// RemoveFile deletes one row by path. Missing rows are not an error.
func (s *Store) RemoveFile(ctx context.Context, p string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM files WHERE path = ?`, strings.Trim(p, "/")); err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

// UpdateSyncStatus marks a remote path as locally synced (or not) and
// records where the local copy lives.
func (s *Store) UpdateSyncStatus(ctx context.Context, remotePath string, synced bool, localPath string) error {
	if !synced {
		localPath = ""
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET is_synced = ?, local_path = ? WHERE path = ?`,
		boolToInt(synced), localPath, strings.Trim(remotePath, "/"))
	if err != nil {
		return fmt.Errorf("update sync status %s: %w", remotePath, err)
	}
	return nil
}

// PathExists reports whether the exact path is indexed.
func (s *Store) PathExists(ctx context.Context, p string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM files WHERE path = ?`, strings.Trim(p, "/")).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("path exists %s: %w", p, err)
	}
	return true, nil
}

// PruneStale removes children of parent that are absent from seen, together
// with their descendants. Run after a fresh listing of one directory; this
// is how remote deletions reach the index.
func (s *Store) PruneStale(ctx context.Context, parent string, seen map[string]struct{}) (int64, error) {
	parent = strings.Trim(parent, "/")

	children, err := s.DirectoryContents(ctx, parent)
	if err != nil {
		return 0, err
	}

	var removed int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, child := range children {
			if _, ok := seen[child.Path]; ok {
				continue
			}
			res, err := tx.ExecContext(ctx,
				`DELETE FROM files WHERE path = ? OR path LIKE ?`,
				child.Path, child.Path+"/%")
			if err != nil {
				return fmt.Errorf("prune %s: %w", child.Path, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				removed += n
			}
		}
		return nil
	})
	return removed, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(rows rowScanner, f *IndexedFile, withRank bool) error {
	var isDir, isSynced int
	dest := []any{&f.Path, &f.Name, &f.ParentPath, &f.Size, &f.ModTime, &isDir, &isSynced, &f.LocalPath, &f.Extension}
	if withRank {
		dest = append(dest, &f.Relevance)
	}
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("scan file row: %w", err)
	}
	f.IsDirectory = isDir != 0
	f.IsSynced = isSynced != 0
	return nil
}

func parentOf(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}

func extensionOf(name string, isDir bool) string {
	if isDir {
		return ""
	}
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
