package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skydrive-app/skydrive/internal/identity"
	"github.com/stretchr/testify/require"
)

func setupRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	return New(Options{
		DocumentPath: filepath.Join(dir, "sync_jobs.json"),
		JobsDir:      filepath.Join(dir, "jobs"),
		CacheDir:     filepath.Join(dir, "cache"),
		Device:       &identity.Device{ID: "dev-1234", Name: "laptop"},
	})
}

func TestCreateJob_Defaults(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	job, err := r.CreateJob(ctx, "/home/u/docs", "Documents/", SyncTypeBisync)
	require.NoError(t, err)

	require.Len(t, job.JobID, 8)
	require.Equal(t, "/home/u/docs", job.LocalPath)
	require.Equal(t, "Documents", job.RemotePath)
	require.Equal(t, ModeExclusive, job.SyncMode)
	require.Equal(t, StatusPending, job.LastSyncStatus)
	require.Equal(t, "dev-1234", job.OriginDeviceID)
	require.FileExists(t, r.descriptorPath(job.JobID))
}

func TestRegistry_SaveLoadRoundTrip(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	created, err := r.CreateJob(ctx, "/home/u/docs", "Documents", SyncTypeSync)
	require.NoError(t, err)

	fresh := New(Options{
		DocumentPath: r.documentPath,
		JobsDir:      r.jobsDir,
		CacheDir:     r.cacheDir,
		Device:       r.device,
	})
	require.NoError(t, fresh.Load(ctx))

	jobs := fresh.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, created.JobID, jobs[0].JobID)
	require.Equal(t, created.LocalPath, jobs[0].LocalPath)
	require.Equal(t, created.SyncType, jobs[0].SyncType)
}

func TestLoad_RemovesJobWithoutDescriptor(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	keep, err := r.CreateJob(ctx, "/home/u/keep", "Keep", SyncTypeBisync)
	require.NoError(t, err)
	stale, err := r.CreateJob(ctx, "/home/u/stale", "Stale", SyncTypeBisync)
	require.NoError(t, err)

	// Cached transfer state that must go with the stale job.
	require.NoError(t, os.MkdirAll(r.cacheDir, 0o755))
	cacheFile := filepath.Join(r.cacheDir,
		cachePathToken(stale.LocalPath)+".."+cachePathToken(stale.RemotePath)+".lst")
	require.NoError(t, os.WriteFile(cacheFile, []byte("cached"), 0o644))

	require.NoError(t, os.Remove(r.descriptorPath(stale.JobID)))
	require.NoError(t, r.Load(ctx))

	jobs := r.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, keep.JobID, jobs[0].JobID)
	require.NoFileExists(t, cacheFile)
}

func TestLoad_MigratesOrphanDescriptor(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(r.jobsDir, 0o755))
	orphan := filepath.Join(r.jobsDir, "feed1234.conf")
	content := "LOCAL_PATH=\"/home/u/photos\"\nREMOTE_PATH=\"Photos\"\nSYNC_TYPE=\"bisync\"\n"
	require.NoError(t, os.WriteFile(orphan, []byte(content), 0o644))

	require.NoError(t, r.Load(ctx))

	jobs := r.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, "feed1234", jobs[0].JobID)
	require.Equal(t, "/home/u/photos", jobs[0].LocalPath)
	require.Equal(t, "Photos", jobs[0].RemotePath)
	require.Equal(t, StatusMigrated, jobs[0].LastSyncStatus)
	require.Equal(t, ModeExclusive, jobs[0].SyncMode)
	require.Equal(t, "dev-1234", jobs[0].OriginDeviceID)
}

func TestDeleteJob_RemovesDescriptor(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	job, err := r.CreateJob(ctx, "/home/u/docs", "Documents", SyncTypeBisync)
	require.NoError(t, err)

	require.NoError(t, r.DeleteJob(ctx, job.JobID))
	require.NoFileExists(t, r.descriptorPath(job.JobID))
	require.Empty(t, r.Jobs())

	require.ErrorIs(t, r.DeleteJob(ctx, job.JobID), ErrJobNotFound)
}

func TestUpdateJob_PreservesOriginAndCreation(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	job, err := r.CreateJob(ctx, "/home/u/docs", "Documents", SyncTypeBisync)
	require.NoError(t, err)

	edited := *job
	edited.SyncType = SyncTypeCopy
	edited.OriginDeviceID = "someone-else"
	require.NoError(t, r.UpdateJob(ctx, edited))

	got, err := r.Job(job.JobID)
	require.NoError(t, err)
	require.Equal(t, SyncTypeCopy, got.SyncType)
	require.Equal(t, "dev-1234", got.OriginDeviceID)
	require.Equal(t, job.CreatedAt, got.CreatedAt)
}

func TestFindByLocalPath(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	job, err := r.CreateJob(ctx, "/home/u/docs", "Documents", SyncTypeBisync)
	require.NoError(t, err)

	require.Nil(t, r.FindByLocalPath("/home/u/other"))

	found := r.FindByLocalPath("/home/u/./docs/")
	require.NotNil(t, found)
	require.Equal(t, job.JobID, found.JobID)
}

func TestNestedWithSyncedFolder(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	job, err := r.CreateJob(ctx, "/home/u/docs", "Documents", SyncTypeBisync)
	require.NoError(t, err)

	require.Nil(t, r.NestedWithSyncedFolder("/home/u/docs"), "exact match is not nesting")
	require.Nil(t, r.NestedWithSyncedFolder("/home/u/docsish"))

	sub := r.NestedWithSyncedFolder("/home/u/docs/sub")
	require.NotNil(t, sub)
	require.Equal(t, job.JobID, sub.JobID)

	super := r.NestedWithSyncedFolder("/home/u")
	require.NotNil(t, super)
	require.Equal(t, job.JobID, super.JobID)
}

func TestSharedSyncLifecycle(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	job, err := r.CreateJob(ctx, "/home/u/docs", "Documents", SyncTypeBisync)
	require.NoError(t, err)

	require.NoError(t, r.EnableSharedSync(ctx, job.JobID))
	require.NoError(t, r.JoinSharedSync(ctx, job.JobID, DeviceInfo{DeviceID: "dev-5678", DeviceName: "desktop"}))

	got, err := r.Job(job.JobID)
	require.NoError(t, err)
	require.Equal(t, ModeShared, got.SyncMode)
	require.True(t, got.IsAuthorizedDevice("dev-5678"))

	require.NoError(t, r.LeaveSharedSync(ctx, job.JobID, "dev-5678"))
	got, err = r.Job(job.JobID)
	require.NoError(t, err)
	require.False(t, got.IsAuthorizedDevice("dev-5678"))
}

func TestSyncLifecycleTransitions(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	job, err := r.CreateJob(ctx, "/home/u/docs", "Documents", SyncTypeBisync)
	require.NoError(t, err)

	require.NoError(t, r.RecordSyncStart(ctx, job.JobID))
	got, err := r.Job(job.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, got.LastSyncStatus)
	require.Equal(t, "dev-1234", got.LastSyncDeviceID)

	require.NoError(t, r.RecordSyncComplete(ctx, job.JobID, true))
	got, err = r.Job(job.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, got.LastSyncStatus)
	require.False(t, got.LastSyncTime.IsZero())

	require.NoError(t, r.RecordSyncComplete(ctx, job.JobID, false))
	got, err = r.Job(job.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.LastSyncStatus)
}

func TestDocumentFormat(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	_, err := r.CreateJob(ctx, "/home/u/docs", "Documents", SyncTypeBisync)
	require.NoError(t, err)

	data, err := os.ReadFile(r.documentPath)
	require.NoError(t, err)

	var doc document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, documentVersion, doc.Version)
	require.Equal(t, "dev-1234", doc.DeviceID)
	require.Len(t, doc.Jobs, 1)
}

type countingExporter struct {
	calls atomic.Int32
	done  chan struct{}
}

func (c *countingExporter) Export(ctx context.Context) error {
	if c.calls.Add(1) == 1 {
		close(c.done)
	}
	return nil
}

func TestMutations_DebounceExports(t *testing.T) {
	r := setupRegistry(t)
	r.exportDebounce = 20 * time.Millisecond
	ctx := context.Background()

	exporter := &countingExporter{done: make(chan struct{})}
	r.SetExporter(exporter)

	job, err := r.CreateJob(ctx, "/home/u/docs", "Documents", SyncTypeBisync)
	require.NoError(t, err)
	require.NoError(t, r.RecordSyncStart(ctx, job.JobID))
	require.NoError(t, r.RecordSyncComplete(ctx, job.JobID, true))

	select {
	case <-exporter.done:
	case <-time.After(2 * time.Second):
		t.Fatal("export never ran")
	}

	// Burst of three mutations collapses into one pending export.
	require.LessOrEqual(t, exporter.calls.Load(), int32(2))
}
