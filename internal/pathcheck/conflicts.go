package pathcheck

import (
	"os"
	"path/filepath"
)

// LocalConflict classifies what already occupies a candidate sync path.
type LocalConflict int

const (
	// NoConflict means the path is free to use.
	NoConflict LocalConflict = iota
	// FileExists means the path is taken by a regular file.
	FileExists
	// FolderSameDevice means this device already synced here; resuming is
	// safe.
	FolderSameDevice
	// FolderDifferentDevice means another device's sync lives here.
	FolderDifferentDevice
	// FolderUnknown means a populated folder without a marker, probably an
	// unrelated user folder.
	FolderUnknown
	// NotWritable means the folder cannot be written.
	NotWritable
	// InvalidFilesystem means the filesystem failed compatibility checks.
	InvalidFilesystem
	// UnmountablePath means no filesystem could be resolved for the path.
	UnmountablePath
)

func (c LocalConflict) String() string {
	switch c {
	case NoConflict:
		return "none"
	case FileExists:
		return "file exists"
	case FolderSameDevice:
		return "folder from this device"
	case FolderDifferentDevice:
		return "folder from another device"
	case FolderUnknown:
		return "unrelated folder"
	case NotWritable:
		return "not writable"
	case InvalidFilesystem:
		return "incompatible filesystem"
	case UnmountablePath:
		return "unresolvable path"
	default:
		return "unknown"
	}
}

// CheckConflicts classifies a candidate local sync path for the given
// device. An empty or absent folder with a healthy filesystem is the only
// NoConflict outcome besides resuming this device's own earlier sync.
func CheckConflicts(path, deviceID string) LocalConflict {
	st := CheckPath(path, 0)
	if !st.ValidMount {
		return UnmountablePath
	}
	if !st.CompatibleFilesystem {
		return InvalidFilesystem
	}
	if !st.Writable {
		return NotWritable
	}

	info, err := os.Stat(path)
	if err != nil {
		return NoConflict
	}
	if !info.IsDir() {
		return FileExists
	}

	if m := ReadMarker(path); m != nil {
		if m.DeviceID == deviceID {
			return FolderSameDevice
		}
		return FolderDifferentDevice
	}

	if folderIsEmpty(path) {
		return NoConflict
	}
	return FolderUnknown
}

func folderIsEmpty(path string) bool {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Name() == markerFileName {
			continue
		}
		return false
	}
	return true
}

// DefaultSyncLocation is where new sync folders are suggested: a SkyDrive
// folder in the user's home.
func DefaultSyncLocation() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "SkyDrive")
	}
	return filepath.Join(home, "SkyDrive")
}

// EnsureDefaultSyncLocation creates the default folder if needed and
// returns it.
func EnsureDefaultSyncLocation() (string, error) {
	loc := DefaultSyncLocation()
	if err := os.MkdirAll(loc, 0o755); err != nil {
		return "", err
	}
	return loc, nil
}
