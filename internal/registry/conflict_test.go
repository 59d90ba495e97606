package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func jobFixture(id, local, remote, mode, origin string) SyncJobMetadata {
	return SyncJobMetadata{
		JobID:            id,
		LocalPath:        local,
		RemotePath:       remote,
		SyncType:         SyncTypeBisync,
		SyncMode:         mode,
		OriginDeviceID:   origin,
		OriginDeviceName: "device " + origin,
	}
}

func TestCheckConflicts_NoJobs(t *testing.T) {
	c := CheckConflicts(nil, "d1", "/home/u/docs", "Documents")
	require.Equal(t, ConflictNone, c.Type)
	require.Empty(t, c.ConflictingJobID)
}

func TestCheckConflicts_Duplicate(t *testing.T) {
	jobs := []SyncJobMetadata{jobFixture("aaaa1111", "/home/u/docs", "Documents", ModeExclusive, "d1")}

	c := CheckConflicts(jobs, "d1", "/home/u/docs", "Documents")
	require.Equal(t, ConflictDuplicate, c.Type)
	require.Equal(t, "aaaa1111", c.ConflictingJobID)
}

func TestCheckConflicts_DuplicateIsCaseInsensitiveOnRemote(t *testing.T) {
	jobs := []SyncJobMetadata{jobFixture("aaaa1111", "/home/u/docs", "/Docs", ModeExclusive, "d1")}

	c := CheckConflicts(jobs, "d1", "/home/u/docs", "/docs/")
	require.Equal(t, ConflictDuplicate, c.Type)
}

func TestCheckConflicts_SameLocalDifferentRemote(t *testing.T) {
	jobs := []SyncJobMetadata{jobFixture("aaaa1111", "/home/u/docs", "Documents", ModeExclusive, "d1")}

	c := CheckConflicts(jobs, "d1", "/home/u/docs/", "Photos")
	require.Equal(t, ConflictSameLocalDifferentRemote, c.Type)
	require.Equal(t, "aaaa1111", c.ConflictingJobID)
}

func TestCheckConflicts_SameRemoteExclusive(t *testing.T) {
	jobs := []SyncJobMetadata{jobFixture("aaaa1111", "/mnt/laptop/docs", "Documents", ModeExclusive, "d1")}

	c := CheckConflicts(jobs, "d2", "/home/u/docs", "documents")
	require.Equal(t, ConflictSameRemoteExclusive, c.Type)
	require.Equal(t, "d1", c.DeviceID)
}

func TestCheckConflicts_SharedAuthorization(t *testing.T) {
	job := jobFixture("aaaa1111", "/mnt/laptop/docs", "Documents", ModeShared, "d1")

	c := CheckConflicts([]SyncJobMetadata{job}, "d2", "/home/u/docs", "Documents")
	require.Equal(t, ConflictDifferentDeviceUnshared, c.Type)

	job.AddSharedDevice(DeviceInfo{DeviceID: "d2", DeviceName: "desktop"})
	c = CheckConflicts([]SyncJobMetadata{job}, "d2", "/home/u/docs", "Documents")
	require.Equal(t, ConflictNone, c.Type)
}

func TestCheckConflicts_ExclusiveToSharedFlow(t *testing.T) {
	job := jobFixture("aaaa1111", "/mnt/laptop/docs", "Documents", ModeExclusive, "d1")

	c := CheckConflicts([]SyncJobMetadata{job}, "d2", "/home/u/docs", "Documents")
	require.Equal(t, ConflictSameRemoteExclusive, c.Type)

	job.SyncMode = ModeShared
	job.AddSharedDevice(DeviceInfo{DeviceID: "d2", DeviceName: "desktop"})

	c = CheckConflicts([]SyncJobMetadata{job}, "d2", "/home/u/docs", "Documents")
	require.Equal(t, ConflictNone, c.Type)
}

func TestCheckConflicts_DuplicateWinsOverLocalCollision(t *testing.T) {
	jobs := []SyncJobMetadata{
		jobFixture("bbbb2222", "/home/u/docs", "Other", ModeExclusive, "d1"),
		jobFixture("aaaa1111", "/home/u/docs", "Documents", ModeExclusive, "d1"),
	}

	c := CheckConflicts(jobs, "d1", "/home/u/docs", "Documents")
	require.Equal(t, ConflictDuplicate, c.Type)
	require.Equal(t, "aaaa1111", c.ConflictingJobID)
}

func TestCheckConflicts_LocalPathLexicalNormalization(t *testing.T) {
	jobs := []SyncJobMetadata{jobFixture("aaaa1111", "/home/u/docs", "Documents", ModeExclusive, "d1")}

	c := CheckConflicts(jobs, "d1", "/home/u/./docs/../docs", "Photos")
	require.Equal(t, ConflictSameLocalDifferentRemote, c.Type)
}

func TestIsAuthorizedDevice(t *testing.T) {
	job := jobFixture("aaaa1111", "/l", "/r", ModeExclusive, "d1")

	require.True(t, job.IsAuthorizedDevice("d1"))
	require.False(t, job.IsAuthorizedDevice("d2"))

	job.SyncMode = ModeShared
	require.False(t, job.IsAuthorizedDevice("d2"))

	job.AddSharedDevice(DeviceInfo{DeviceID: "d2"})
	require.True(t, job.IsAuthorizedDevice("d2"))

	job.RemoveSharedDevice("d2")
	require.False(t, job.IsAuthorizedDevice("d2"))
}
