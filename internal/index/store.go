// Package index implements the local search index over the remote file
// tree: an SQLite database with optional FTS5 ranking, encrypted at rest
// between sessions, filled by a streaming ingestion worker.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/skydrive-app/skydrive/internal/dbx"
	"github.com/skydrive-app/skydrive/internal/index/migrations"
	"github.com/skydrive-app/skydrive/internal/logging"
	"github.com/skydrive-app/skydrive/internal/remote"

	"github.com/skydrive-app/skydrive/internal/cryptox"

	_ "modernc.org/sqlite"
)

const (
	metaLastFullIndex    = "last_full_index"
	metaLastPartialIndex = "last_partial_index"
	metaTotalFiles       = "total_files"
)

// Options configures Open. Key may be nil, which disables at-rest
// encryption. Storage is required only when ingestion is used.
type Options struct {
	Path    string
	Key     []byte
	Logger  logging.Logger
	Storage remote.Storage
}

// Store is the encrypted file index. One instance per process; safe for
// concurrent readers, with a single ingestion writer.
type Store struct {
	db      *sql.DB
	path    string
	key     []byte
	logger  logging.Logger
	storage remote.Storage

	fts bool

	indexing   atomic.Bool
	cancelReq  atomic.Bool
	workerDone sync.WaitGroup

	progressMu sync.Mutex
	progressFn func(percent int, status string)
	percent    int
	status     string
}

// Open decrypts the database file if needed, opens it and brings the schema
// up to date. A database that fails to decrypt (wrong key, corruption) is
// quarantined with a timestamped suffix and a fresh index is started; the
// quarantined copy is kept for manual recovery.
func Open(ctx context.Context, opts Options) (*Store, error) {
	s := &Store{
		path:    opts.Path,
		key:     opts.Key,
		logger:  opts.Logger,
		storage: opts.Storage,
		status:  "idle",
	}
	if s.logger == nil {
		s.logger = logging.NewDefault("", false)
	}

	if s.isFileBacked() && len(s.key) > 0 && cryptox.IsEncryptedFile(s.path) {
		if err := cryptox.DecryptFile(s.path, s.key); err != nil {
			quarantined := fmt.Sprintf("%s.corrupted.%d", s.path, time.Now().Unix())
			if renameErr := os.Rename(s.path, quarantined); renameErr != nil {
				return nil, fmt.Errorf("quarantine index: %w", renameErr)
			}
			s.logger.Warn(ctx, "index database unreadable, starting fresh",
				"quarantined", quarantined, "cause", err)
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	s.db = db

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index schema: %w", err)
	}

	s.ensureFTS(ctx)
	return s, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatal("failed to set goose dialect:", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// ensureFTS creates the FTS5 virtual table and its sync triggers. FTS5 is a
// compile-time SQLite option, so failure here only degrades search to LIKE.
func (s *Store) ensureFTS(ctx context.Context) {
	stmts := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
			name, path, content='files', content_rowid='id',
			tokenize='porter unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS files_ai AFTER INSERT ON files BEGIN
			INSERT INTO files_fts(rowid, name, path) VALUES (new.id, new.name, new.path);
		END`,
		`CREATE TRIGGER IF NOT EXISTS files_ad AFTER DELETE ON files BEGIN
			INSERT INTO files_fts(files_fts, rowid, name, path) VALUES ('delete', old.id, old.name, old.path);
		END`,
		`CREATE TRIGGER IF NOT EXISTS files_au AFTER UPDATE ON files BEGIN
			INSERT INTO files_fts(files_fts, rowid, name, path) VALUES ('delete', old.id, old.name, old.path);
			INSERT INTO files_fts(rowid, name, path) VALUES (new.id, new.name, new.path);
		END`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Warn(ctx, "full-text search unavailable, using substring search", "error", err)
			s.fts = false
			return
		}
	}
	s.fts = true
}

// Close stops any running ingestion, checkpoints the WAL, closes the
// database and encrypts the file at rest when a key is present. Until Close
// runs, the database sits in plaintext on disk; a crash skips encryption
// until the next clean shutdown.
func (s *Store) Close(ctx context.Context) error {
	s.StopIndexing()

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn(ctx, "wal checkpoint failed", "error", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close index database: %w", err)
	}

	if s.isFileBacked() && len(s.key) > 0 {
		if err := cryptox.EncryptFile(s.path, s.key); err != nil {
			return fmt.Errorf("encrypt index at rest: %w", err)
		}
	}
	return nil
}

func (s *Store) isFileBacked() bool {
	return s.path != "" && s.path != ":memory:" && !strings.HasPrefix(s.path, "file::memory:")
}

// meta helpers

func (s *Store) setMeta(ctx context.Context, q dbx.DBTX, key, value string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO index_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

func (s *Store) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM index_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, nil
}

// NeedsRefresh reports whether the last full indexing pass is older than
// maxAge (or has never happened).
func (s *Store) NeedsRefresh(ctx context.Context, maxAge time.Duration) (bool, error) {
	value, err := s.getMeta(ctx, metaLastFullIndex)
	if err != nil {
		return false, err
	}
	if value == "" {
		return true, nil
	}
	last, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return true, nil
	}
	return time.Since(last) > maxAge, nil
}

// Stats reports index contents and ingestion state in one snapshot.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	row := s.db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN is_directory = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN is_directory = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN is_directory = 0 THEN size ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN is_synced = 1 AND is_directory = 0 THEN 1 ELSE 0 END), 0)
		FROM files`)
	if err := row.Scan(&st.TotalFiles, &st.TotalFolders, &st.TotalSize, &st.SyncedFiles); err != nil {
		return nil, fmt.Errorf("index stats: %w", err)
	}

	var err error
	if st.LastFullIndex, err = s.getMeta(ctx, metaLastFullIndex); err != nil {
		return nil, err
	}
	if st.LastPartialIndex, err = s.getMeta(ctx, metaLastPartialIndex); err != nil {
		return nil, err
	}

	st.IsIndexing = s.indexing.Load()
	s.progressMu.Lock()
	st.ProgressPercent = s.percent
	st.Status = s.status
	s.progressMu.Unlock()

	return st, nil
}

// Clear wipes every indexed row. Used for a troubleshooting reset before a
// forced full reindex.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files`); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM index_meta`); err != nil {
		return fmt.Errorf("clear index meta: %w", err)
	}
	return nil
}
