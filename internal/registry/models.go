// Package registry is the durable store of sync job definitions and the
// pure conflict classification consulted before accepting a new job. It is
// serverless: coordination between devices happens through per-device
// manifests in cloud storage, never through a central service.
package registry

import (
	"path/filepath"
	"strings"
	"time"
)

// Sync job transfer directions.
const (
	SyncTypeBisync = "bisync"
	SyncTypeSync   = "sync"
	SyncTypeCopy   = "copy"
)

// Sync job ownership modes.
const (
	ModeExclusive = "exclusive"
	ModeShared    = "shared"
)

// Sync job statuses.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusMigrated = "migrated"
)

// DeviceInfo identifies one device authorized on a shared job.
type DeviceInfo struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

// SyncJobMetadata is one configured sync pair. JobID is unique; at most one
// job binds a given local path, enforced by conflict checks rather than a
// schema constraint.
type SyncJobMetadata struct {
	JobID            string       `json:"job_id"`
	LocalPath        string       `json:"local_path"`
	RemotePath       string       `json:"remote_path"`
	SyncType         string       `json:"sync_type"`
	OriginDeviceID   string       `json:"origin_device_id"`
	OriginDeviceName string       `json:"origin_device_name"`
	SyncMode         string       `json:"sync_mode"`
	CreatedAt        time.Time    `json:"created_at"`
	LastSyncTime     time.Time    `json:"last_sync_time,omitempty"`
	LastSyncDeviceID string       `json:"last_sync_device_id,omitempty"`
	LastSyncStatus   string       `json:"last_sync_status"`
	SharedDevices    []DeviceInfo `json:"shared_devices,omitempty"`
}

// IsAuthorizedDevice reports whether deviceID may run this job: the origin
// always, plus the listed shared devices when the job is shared.
func (j *SyncJobMetadata) IsAuthorizedDevice(deviceID string) bool {
	if j.OriginDeviceID == deviceID {
		return true
	}
	if j.SyncMode != ModeShared {
		return false
	}
	for _, d := range j.SharedDevices {
		if d.DeviceID == deviceID {
			return true
		}
	}
	return false
}

// AddSharedDevice lists a device on the job; adding an already-listed
// device updates its name.
func (j *SyncJobMetadata) AddSharedDevice(d DeviceInfo) {
	for i := range j.SharedDevices {
		if j.SharedDevices[i].DeviceID == d.DeviceID {
			j.SharedDevices[i].DeviceName = d.DeviceName
			return
		}
	}
	j.SharedDevices = append(j.SharedDevices, d)
}

// RemoveSharedDevice delists a device. Removing an unlisted device is a
// no-op.
func (j *SyncJobMetadata) RemoveSharedDevice(deviceID string) {
	for i := range j.SharedDevices {
		if j.SharedDevices[i].DeviceID == deviceID {
			j.SharedDevices = append(j.SharedDevices[:i], j.SharedDevices[i+1:]...)
			return
		}
	}
}

// documentVersion is bumped when the on-disk job document schema changes.
const documentVersion = 2

// document is the persisted registry file.
type document struct {
	Version  int               `json:"version"`
	DeviceID string            `json:"device_id"`
	Jobs     []SyncJobMetadata `json:"jobs"`
}

// NormalizeRemotePath canonicalizes a remote path for equality checks:
// remote storage paths are case-insensitive and trailing slashes carry no
// meaning.
func NormalizeRemotePath(p string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(p), "/"))
}

// NormalizeLocalPath cleans a local path lexically. Symlinks are not
// resolved; two paths reaching one folder through different links are
// treated as distinct.
func NormalizeLocalPath(p string) string {
	return filepath.Clean(strings.TrimSpace(p))
}
