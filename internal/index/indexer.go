package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/skydrive-app/skydrive/internal/dbx"
)

// ErrIndexingInProgress is returned by StartIndexing while a previous pass
// is still running.
var ErrIndexingInProgress = errors.New("indexing already in progress")

const batchSize = 500

// SetProgressFunc registers a callback invoked after every flushed batch
// and on terminal state changes. May be called at any time.
func (s *Store) SetProgressFunc(fn func(percent int, status string)) {
	s.progressMu.Lock()
	s.progressFn = fn
	s.progressMu.Unlock()
}

func (s *Store) setProgress(percent int, status string) {
	s.progressMu.Lock()
	// Progress only moves forward within a pass; a late small estimate must
	// not make the bar jump backwards.
	if percent < s.percent && status == s.status {
		percent = s.percent
	}
	s.percent = percent
	s.status = status
	fn := s.progressFn
	s.progressMu.Unlock()

	if fn != nil {
		fn(percent, status)
	}
}

// StartIndexing launches the ingestion worker. A full pass replaces the
// whole index; a partial pass upserts over the existing rows. Only one
// worker runs at a time.
func (s *Store) StartIndexing(ctx context.Context, full bool) error {
	if s.storage == nil {
		return errors.New("no remote storage configured")
	}
	if !s.indexing.CompareAndSwap(false, true) {
		return ErrIndexingInProgress
	}

	s.cancelReq.Store(false)
	s.setProgress(0, "starting")

	s.workerDone.Add(1)
	go func() {
		defer s.workerDone.Done()
		defer s.indexing.Store(false)
		s.runIngestion(ctx, full)
	}()
	return nil
}

// StopIndexing asks a running worker to stop and waits for it. The batch in
// flight is committed, not rolled back.
func (s *Store) StopIndexing() {
	s.cancelReq.Store(true)
	s.workerDone.Wait()
}

func (s *Store) runIngestion(ctx context.Context, full bool) {
	start := time.Now()

	listing, err := s.storage.ListAll(ctx)
	if err != nil {
		s.logger.Error(ctx, "remote listing failed", "error", err)
		s.setProgress(0, "error")
		return
	}
	defer listing.Close()

	// An estimate from the previous pass drives the progress percentage;
	// without one the bar stays conservative until completion.
	estimate := s.estimateTotal(ctx)

	scanner := newObjectScanner(listing)
	batch := make([]listedEntry, 0, batchSize)
	var total int64
	cleared := !full
	cancelled := false

	for {
		if s.cancelReq.Load() {
			cancelled = true
			break
		}

		obj, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Error(ctx, "listing stream failed", "error", err, "records", total)
			s.setProgress(s.percent, "error")
			return
		}

		entry, ok := parseListedEntry(obj)
		if !ok {
			continue
		}
		batch = append(batch, entry)
		total++

		if len(batch) >= batchSize {
			if err := s.flushBatch(ctx, batch, &cleared); err != nil {
				s.logger.Error(ctx, "index batch write failed", "error", err)
				s.setProgress(s.percent, "error")
				return
			}
			batch = batch[:0]
			s.setProgress(progressPercent(total, estimate), "indexing")
		}
	}

	if len(batch) > 0 {
		if err := s.flushBatch(ctx, batch, &cleared); err != nil {
			s.logger.Error(ctx, "index batch write failed", "error", err)
			s.setProgress(s.percent, "error")
			return
		}
	}

	if cancelled {
		s.logger.Info(ctx, "indexing cancelled", "records", total)
		s.setProgress(s.percent, "cancelled")
		return
	}

	if total == 0 && full {
		// An empty full listing is far more likely a remote outage than a
		// genuinely empty account; keep the rows we already have.
		s.logger.Error(ctx, "full reindex returned no records, keeping existing index")
		s.setProgress(0, "error")
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	metaKey := metaLastPartialIndex
	if full {
		metaKey = metaLastFullIndex
	}
	if err := s.setMeta(ctx, s.db, metaKey, now); err != nil {
		s.logger.Warn(ctx, "record index timestamp", "error", err)
	}
	if err := s.setMeta(ctx, s.db, metaTotalFiles, strconv.FormatInt(total, 10)); err != nil {
		s.logger.Warn(ctx, "record index total", "error", err)
	}

	s.setProgress(100, "complete")
	s.logger.Info(ctx, "indexing finished",
		"records", total, "full", full, "elapsed", time.Since(start))
}

// flushBatch writes one batch in a single transaction. On a full pass the
// first flush also clears the previous rows, so a listing that dies before
// producing anything never wipes the index.
func (s *Store) flushBatch(ctx context.Context, batch []listedEntry, cleared *bool) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if !*cleared {
			if _, err := tx.ExecContext(ctx, `DELETE FROM files`); err != nil {
				return fmt.Errorf("clear before full reindex: %w", err)
			}
			*cleared = true
		}
		for i := range batch {
			e := &batch[i]
			f := IndexedFile{
				Path:        e.Path,
				Name:        e.Name,
				Size:        e.Size,
				ModTime:     e.ModTime,
				IsDirectory: e.IsDir,
			}
			if err := upsertFile(ctx, tx, &f); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) estimateTotal(ctx context.Context) int64 {
	value, err := s.getMeta(ctx, metaTotalFiles)
	if err != nil || value == "" {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func progressPercent(done, estimate int64) int {
	if estimate <= 0 {
		return 0
	}
	p := int(done * 100 / estimate)
	if p > 99 {
		p = 99
	}
	return p
}

// UpdateFromSyncJob refreshes one synced folder after a sync run: re-list
// the remote folder, mark its entries synced with their local locations,
// and prune whatever disappeared remotely.
func (s *Store) UpdateFromSyncJob(ctx context.Context, jobID, localPath, remotePath string) error {
	if s.storage == nil {
		return errors.New("no remote storage configured")
	}

	entries, err := s.storage.ListDir(ctx, remotePath)
	if err != nil {
		return fmt.Errorf("list %s for job %s: %w", remotePath, jobID, err)
	}

	remotePath = strings.Trim(remotePath, "/")
	seen := make(map[string]struct{}, len(entries))

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, e := range entries {
			p := strings.Trim(e.Path, "/")
			if remotePath != "" && !strings.HasPrefix(p, remotePath+"/") {
				p = remotePath + "/" + p
			}
			seen[p] = struct{}{}

			f := IndexedFile{
				Path:        p,
				Name:        e.Name,
				Size:        e.Size,
				ModTime:     e.ModTime.UTC().Format("2006-01-02T15:04:05"),
				IsDirectory: e.IsDir,
				IsSynced:    true,
				LocalPath:   filepath.Join(localPath, e.Name),
			}
			if err := upsertFile(ctx, tx, &f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := s.PruneStale(ctx, remotePath, seen); err != nil {
		return err
	}
	return s.setMeta(ctx, s.db, metaLastPartialIndex, time.Now().UTC().Format(time.RFC3339))
}
