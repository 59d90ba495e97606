package registry

import "fmt"

// ConflictType classifies why a candidate sync pair cannot be created.
type ConflictType string

const (
	ConflictNone                     ConflictType = "NONE"
	ConflictDuplicate                ConflictType = "DUPLICATE"
	ConflictSameLocalDifferentRemote ConflictType = "SAME_LOCAL_DIFFERENT_REMOTE"
	ConflictSameRemoteExclusive      ConflictType = "SAME_REMOTE_EXCLUSIVE"
	ConflictDifferentDeviceUnshared  ConflictType = "DIFFERENT_DEVICE_UNSHARED"
)

// Conflict is the classification result for one candidate pair.
type Conflict struct {
	Type             ConflictType
	ConflictingJobID string
	DeviceID         string
	DeviceName       string
	Message          string
}

// CheckConflicts classifies a candidate (local, remote) pair against the
// existing jobs for the given device. It is pure: no I/O, no errors, always
// exactly one classification.
//
// Precedence when several jobs could match: an exact duplicate wins, then a
// local-path collision, then remote ownership conflicts.
func CheckConflicts(jobs []SyncJobMetadata, deviceID, local, remote string) Conflict {
	localNorm := NormalizeLocalPath(local)
	remoteNorm := NormalizeRemotePath(remote)

	var localHit, remoteHit *SyncJobMetadata
	for i := range jobs {
		j := &jobs[i]
		sameLocal := NormalizeLocalPath(j.LocalPath) == localNorm
		sameRemote := NormalizeRemotePath(j.RemotePath) == remoteNorm

		if sameLocal && sameRemote {
			return Conflict{
				Type:             ConflictDuplicate,
				ConflictingJobID: j.JobID,
				DeviceID:         j.OriginDeviceID,
				DeviceName:       j.OriginDeviceName,
				Message:          fmt.Sprintf("this folder pair is already configured (job %s)", j.JobID),
			}
		}
		if sameLocal && localHit == nil {
			localHit = j
		}
		if sameRemote && remoteHit == nil {
			remoteHit = j
		}
	}

	if localHit != nil {
		return Conflict{
			Type:             ConflictSameLocalDifferentRemote,
			ConflictingJobID: localHit.JobID,
			DeviceID:         localHit.OriginDeviceID,
			DeviceName:       localHit.OriginDeviceName,
			Message: fmt.Sprintf("local folder is already syncing with %q (job %s)",
				localHit.RemotePath, localHit.JobID),
		}
	}

	if remoteHit != nil && !remoteHit.IsAuthorizedDevice(deviceID) {
		if remoteHit.SyncMode == ModeShared {
			return Conflict{
				Type:             ConflictDifferentDeviceUnshared,
				ConflictingJobID: remoteHit.JobID,
				DeviceID:         remoteHit.OriginDeviceID,
				DeviceName:       remoteHit.OriginDeviceName,
				Message: fmt.Sprintf("remote folder is shared by %q but this device is not on its device list",
					remoteHit.OriginDeviceName),
			}
		}
		return Conflict{
			Type:             ConflictSameRemoteExclusive,
			ConflictingJobID: remoteHit.JobID,
			DeviceID:         remoteHit.OriginDeviceID,
			DeviceName:       remoteHit.OriginDeviceName,
			Message: fmt.Sprintf("remote folder is synced exclusively by %q",
				remoteHit.OriginDeviceName),
		}
	}

	return Conflict{Type: ConflictNone}
}
