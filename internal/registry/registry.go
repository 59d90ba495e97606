package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/skydrive-app/skydrive/internal/filex"
	"github.com/skydrive-app/skydrive/internal/identity"
	"github.com/skydrive-app/skydrive/internal/logging"
	"github.com/skydrive-app/skydrive/internal/randx"
)

var ErrJobNotFound = errors.New("sync job not found")

// Exporter pushes the registry to cloud storage for peer discovery. Wired
// in by the application after construction to keep this package free of a
// cloud dependency.
type Exporter interface {
	Export(ctx context.Context) error
}

// Options configures New.
type Options struct {
	// DocumentPath is the registry JSON file.
	DocumentPath string
	// JobsDir holds the per-job descriptor files.
	JobsDir string
	// CacheDir holds transfer-tool state cleaned up with stale jobs. Empty
	// disables cleanup.
	CacheDir string
	Device   *identity.Device
	Logger   logging.Logger
	// ExportDebounce is the minimum gap between cloud exports; zero means
	// the 30 second default.
	ExportDebounce time.Duration
}

// Registry is the durable set of sync jobs for this device. All mutations
// rewrite the document atomically and schedule a debounced cloud export.
// In-memory state stays authoritative when persistence fails.
type Registry struct {
	documentPath string
	jobsDir      string
	cacheDir     string
	device       *identity.Device
	logger       logging.Logger

	mu   sync.Mutex
	jobs []SyncJobMetadata

	exportMu       sync.Mutex
	exporter       Exporter
	exportPending  bool
	lastExport     time.Time
	exportDebounce time.Duration
}

func New(opts Options) *Registry {
	debounce := opts.ExportDebounce
	if debounce <= 0 {
		debounce = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDefault("", false)
	}
	return &Registry{
		documentPath:   opts.DocumentPath,
		jobsDir:        opts.JobsDir,
		cacheDir:       opts.CacheDir,
		device:         opts.Device,
		logger:         logger,
		exportDebounce: debounce,
	}
}

// SetExporter wires the cloud export used after every mutation.
func (r *Registry) SetExporter(e Exporter) {
	r.exportMu.Lock()
	r.exporter = e
	r.exportMu.Unlock()
}

// Load reads the persisted document and reconciles it against the job
// descriptor files: entries without a descriptor are stale and removed
// (with their cached transfer state), descriptors without an entry are
// orphans from an older layout and are migrated in.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.documentPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.jobs = nil
	case err != nil:
		return fmt.Errorf("read registry document: %w", err)
	default:
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			r.logger.Warn(ctx, "registry document unreadable, starting empty", "error", err)
			r.jobs = nil
		} else {
			r.jobs = doc.Jobs
		}
	}

	if err := filex.EnsureDir(r.jobsDir); err != nil {
		return fmt.Errorf("ensure jobs dir: %w", err)
	}

	// Drop entries whose descriptor disappeared.
	kept := r.jobs[:0]
	for i := range r.jobs {
		j := r.jobs[i]
		if r.descriptorExists(j.JobID) {
			kept = append(kept, j)
			continue
		}
		r.logger.Info(ctx, "removing stale job without descriptor",
			"job_id", j.JobID, "local", j.LocalPath)
		r.cleanSyncCache(&j)
	}
	r.jobs = kept

	// Adopt descriptors that predate the registry document.
	known := make(map[string]bool, len(r.jobs))
	for i := range r.jobs {
		known[r.jobs[i].JobID] = true
	}
	for _, path := range r.listOrphanDescriptors(known) {
		local, remote, syncType, err := parseDescriptor(path)
		if err != nil || local == "" || remote == "" {
			r.logger.Warn(ctx, "skipping unreadable job descriptor", "path", path, "error", err)
			continue
		}
		if syncType == "" {
			syncType = SyncTypeBisync
		}
		id := strings.TrimSuffix(filepath.Base(path), ".conf")
		r.jobs = append(r.jobs, SyncJobMetadata{
			JobID:            id,
			LocalPath:        local,
			RemotePath:       remote,
			SyncType:         syncType,
			OriginDeviceID:   r.device.ID,
			OriginDeviceName: r.device.Name,
			SyncMode:         ModeExclusive,
			CreatedAt:        time.Now().UTC(),
			LastSyncStatus:   StatusMigrated,
		})
		r.logger.Info(ctx, "migrated orphan job descriptor", "job_id", id, "local", local)
	}

	r.saveLocked(ctx)
	return nil
}

// CreateJob registers a new sync pair and writes its descriptor. The
// 8-hex-char id is not collision-checked; at human creation rates a clash
// is vanishingly unlikely and the descriptor write would surface it.
func (r *Registry) CreateJob(ctx context.Context, local, remote, syncType string) (*SyncJobMetadata, error) {
	id, err := randx.HexString(8)
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}
	if syncType == "" {
		syncType = SyncTypeBisync
	}

	job := SyncJobMetadata{
		JobID:            id,
		LocalPath:        NormalizeLocalPath(local),
		RemotePath:       strings.TrimRight(strings.TrimSpace(remote), "/"),
		SyncType:         syncType,
		OriginDeviceID:   r.device.ID,
		OriginDeviceName: r.device.Name,
		SyncMode:         ModeExclusive,
		CreatedAt:        time.Now().UTC(),
		LastSyncStatus:   StatusPending,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := filex.EnsureDir(r.jobsDir); err != nil {
		return nil, err
	}
	if err := r.writeDescriptor(&job); err != nil {
		return nil, err
	}

	r.jobs = append(r.jobs, job)
	r.saveLocked(ctx)
	r.scheduleExport()
	return &job, nil
}

// UpdateJob replaces a job's mutable fields and persists. The job id,
// origin and creation time cannot change.
func (r *Registry) UpdateJob(ctx context.Context, updated SyncJobMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.jobs {
		if r.jobs[i].JobID != updated.JobID {
			continue
		}
		updated.OriginDeviceID = r.jobs[i].OriginDeviceID
		updated.OriginDeviceName = r.jobs[i].OriginDeviceName
		updated.CreatedAt = r.jobs[i].CreatedAt
		r.jobs[i] = updated

		if err := r.writeDescriptor(&r.jobs[i]); err != nil {
			r.logger.Warn(ctx, "rewrite job descriptor", "job_id", updated.JobID, "error", err)
		}
		r.saveLocked(ctx)
		r.scheduleExport()
		return nil
	}
	return ErrJobNotFound
}

// DeleteJob removes a job, its descriptor and its cached transfer state.
// Removing the descriptor prevents resurrection on the next Load.
func (r *Registry) DeleteJob(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.jobs {
		if r.jobs[i].JobID != jobID {
			continue
		}
		job := r.jobs[i]
		r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)
		r.removeDescriptor(jobID)
		r.cleanSyncCache(&job)
		r.saveLocked(ctx)
		r.scheduleExport()
		return nil
	}
	return ErrJobNotFound
}

// Job returns a copy of the job with the given id.
func (r *Registry) Job(jobID string) (*SyncJobMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.jobs {
		if r.jobs[i].JobID == jobID {
			j := r.jobs[i]
			return &j, nil
		}
	}
	return nil, ErrJobNotFound
}

// Jobs returns a snapshot of all jobs.
func (r *Registry) Jobs() []SyncJobMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SyncJobMetadata, len(r.jobs))
	copy(out, r.jobs)
	return out
}

// FindByLocalPath returns the job bound to the given local folder, if any.
func (r *Registry) FindByLocalPath(local string) *SyncJobMetadata {
	norm := NormalizeLocalPath(local)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.jobs {
		if NormalizeLocalPath(r.jobs[i].LocalPath) == norm {
			j := r.jobs[i]
			return &j
		}
	}
	return nil
}

// NestedWithSyncedFolder returns the first job whose local folder contains
// the candidate path or is contained by it. Nesting synced folders inside
// each other makes transfers fight over the same files.
func (r *Registry) NestedWithSyncedFolder(local string) *SyncJobMetadata {
	norm := NormalizeLocalPath(local)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.jobs {
		existing := NormalizeLocalPath(r.jobs[i].LocalPath)
		if existing == norm {
			continue
		}
		if strings.HasPrefix(norm, existing+string(filepath.Separator)) ||
			strings.HasPrefix(existing, norm+string(filepath.Separator)) {
			j := r.jobs[i]
			return &j
		}
	}
	return nil
}

// CheckConflicts classifies a candidate pair against the current jobs.
func (r *Registry) CheckConflicts(local, remote string) Conflict {
	return CheckConflicts(r.Jobs(), r.device.ID, local, remote)
}

// EnableSharedSync switches a job to shared mode.
func (r *Registry) EnableSharedSync(ctx context.Context, jobID string) error {
	return r.mutateJob(ctx, jobID, func(j *SyncJobMetadata) {
		j.SyncMode = ModeShared
	})
}

// JoinSharedSync lists a device on a shared job.
func (r *Registry) JoinSharedSync(ctx context.Context, jobID string, d DeviceInfo) error {
	return r.mutateJob(ctx, jobID, func(j *SyncJobMetadata) {
		j.SyncMode = ModeShared
		j.AddSharedDevice(d)
	})
}

// LeaveSharedSync delists a device from a shared job.
func (r *Registry) LeaveSharedSync(ctx context.Context, jobID, deviceID string) error {
	return r.mutateJob(ctx, jobID, func(j *SyncJobMetadata) {
		j.RemoveSharedDevice(deviceID)
	})
}

// RecordSyncStart marks a job running, stamped with this device. Called by
// the external sync executor.
func (r *Registry) RecordSyncStart(ctx context.Context, jobID string) error {
	return r.mutateJob(ctx, jobID, func(j *SyncJobMetadata) {
		j.LastSyncStatus = StatusRunning
		j.LastSyncDeviceID = r.device.ID
	})
}

// RecordSyncComplete marks the outcome of a finished sync run.
func (r *Registry) RecordSyncComplete(ctx context.Context, jobID string, success bool) error {
	return r.mutateJob(ctx, jobID, func(j *SyncJobMetadata) {
		if success {
			j.LastSyncStatus = StatusSuccess
		} else {
			j.LastSyncStatus = StatusFailed
		}
		j.LastSyncTime = time.Now().UTC()
		j.LastSyncDeviceID = r.device.ID
	})
}

func (r *Registry) mutateJob(ctx context.Context, jobID string, fn func(*SyncJobMetadata)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.jobs {
		if r.jobs[i].JobID == jobID {
			fn(&r.jobs[i])
			r.saveLocked(ctx)
			r.scheduleExport()
			return nil
		}
	}
	return ErrJobNotFound
}

// saveLocked rewrites the document. Failure is logged and swallowed: the
// in-memory registry stays authoritative and the next mutation retries.
func (r *Registry) saveLocked(ctx context.Context) {
	doc := document{Version: documentVersion, DeviceID: r.device.ID, Jobs: r.jobs}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		r.logger.Error(ctx, "marshal registry document", "error", err)
		return
	}
	if err := filex.WriteAtomic(r.documentPath, data, 0o600); err != nil {
		r.logger.Error(ctx, "persist registry document", "error", err)
	}
}

// scheduleExport queues one debounced cloud export. Overlapping mutations
// collapse into a single pending export at least exportDebounce apart.
func (r *Registry) scheduleExport() {
	r.exportMu.Lock()
	defer r.exportMu.Unlock()

	if r.exporter == nil || r.exportPending {
		return
	}
	r.exportPending = true

	delay := time.Until(r.lastExport.Add(r.exportDebounce))
	if delay < 0 {
		delay = 0
	}

	time.AfterFunc(delay, func() {
		r.exportMu.Lock()
		r.exportPending = false
		r.lastExport = time.Now()
		exporter := r.exporter
		r.exportMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := exporter.Export(ctx); err != nil {
			r.logger.Warn(ctx, "cloud export failed", "error", err)
		}
	})
}

func (r *Registry) bg() context.Context { return context.Background() }
