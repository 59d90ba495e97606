// Package pathcheck runs filesystem preflight checks on candidate local
// sync folders: write access, mount validity, filesystem compatibility and
// free space. Checks gate job creation; they never modify anything except
// the per-folder marker sidecar.
package pathcheck

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Status is the outcome of CheckPath. Message carries the first problem
// found, phrased for the user.
type Status struct {
	Exists               bool
	Writable             bool
	ValidMount           bool
	CompatibleFilesystem bool
	SufficientSpace      bool
	AvailableBytes       uint64
	RequiredBytes        uint64
	MountPoint           string
	FilesystemType       string
	Message              string
}

// OK reports whether the path passed every check.
func (s *Status) OK() bool {
	return s.Exists && s.Writable && s.ValidMount && s.CompatibleFilesystem && s.SufficientSpace
}

// Filesystem magic numbers from statfs(2).
const (
	magicMSDOS    = 0x4d44
	magicExfat    = 0x2011bab0
	magicExt4     = 0xef53
	magicBtrfs    = 0x9123683e
	magicXFS      = 0x58465342
	magicF2FS     = 0xf2f52010
	magicTmpfs    = 0x01021994
	magicNFS      = 0x6969
	magicCIFS     = 0xff534d42
	magicFuse     = 0x65735546
	magicSquashfs = 0x73717368
	magicISOFS    = 0x9660
	magicOverlay  = 0x794c7630
)

var fsTypeNames = map[int64]string{
	magicMSDOS:    "vfat",
	magicExfat:    "exfat",
	magicExt4:     "ext4",
	magicBtrfs:    "btrfs",
	magicXFS:      "xfs",
	magicF2FS:     "f2fs",
	magicTmpfs:    "tmpfs",
	magicNFS:      "nfs",
	magicCIFS:     "cifs",
	magicFuse:     "fuse",
	magicSquashfs: "squashfs",
	magicISOFS:    "iso9660",
	magicOverlay:  "overlay",
}

// vfat cannot hold a file of 4 GiB or more.
const vfatMaxFile = 4 * 1024 * 1024 * 1024

// fullAdvisoryPct is the usage level above which a path passes but gets a
// warning message.
const fullAdvisoryPct = 90

// CheckPath runs every preflight check on a candidate sync folder. The
// folder itself may not exist yet; checks then apply to the nearest
// existing ancestor.
func CheckPath(path string, requiredBytes uint64) *Status {
	st := &Status{RequiredBytes: requiredBytes}

	target := existingAncestor(path)
	if target == "" {
		st.Message = "path has no existing parent directory"
		return st
	}
	st.Exists = pathExists(path)

	var fs unix.Statfs_t
	if err := unix.Statfs(target, &fs); err != nil {
		st.Message = fmt.Sprintf("cannot stat filesystem: %v", err)
		return st
	}
	st.ValidMount = true
	st.MountPoint = mountPointOf(target)

	fsType := int64(fs.Type)
	if name, ok := fsTypeNames[fsType]; ok {
		st.FilesystemType = name
	} else {
		st.FilesystemType = fmt.Sprintf("0x%x", fsType)
	}

	st.CompatibleFilesystem = true
	switch fsType {
	case magicSquashfs, magicISOFS:
		st.CompatibleFilesystem = false
		st.Message = fmt.Sprintf("%s is a read-only filesystem", st.FilesystemType)
	case magicMSDOS:
		if requiredBytes >= vfatMaxFile {
			st.CompatibleFilesystem = false
			st.Message = "vfat cannot hold files of 4 GiB or more"
		}
	}

	if fs.Flags&unix.ST_RDONLY != 0 {
		st.CompatibleFilesystem = false
		st.Message = "filesystem is mounted read-only"
	}

	st.AvailableBytes = fs.Bavail * uint64(fs.Bsize)
	st.SufficientSpace = st.AvailableBytes >= requiredBytes
	if !st.SufficientSpace {
		st.Message = fmt.Sprintf("needs %d bytes but only %d available",
			requiredBytes, st.AvailableBytes)
	}

	st.Writable = unix.Access(target, unix.W_OK) == nil
	if !st.Writable && st.Message == "" {
		st.Message = "no write permission"
	}

	if st.OK() && fs.Blocks > 0 {
		usedPct := 100 - fs.Bavail*100/fs.Blocks
		if usedPct > fullAdvisoryPct {
			st.Message = fmt.Sprintf("filesystem is %d%% full", usedPct)
		}
	}

	return st
}

// existingAncestor walks up from path to the first component that exists.
func existingAncestor(path string) string {
	p := filepath.Clean(path)
	for {
		if pathExists(p) {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return ""
		}
		p = parent
	}
}

// mountPointOf walks up until the device id changes, landing on the mount
// point of the filesystem holding path.
func mountPointOf(path string) string {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return ""
	}
	dev := st.Dev

	p := path
	for {
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		var pst unix.Stat_t
		if err := unix.Stat(parent, &pst); err != nil {
			return p
		}
		if pst.Dev != dev {
			return p
		}
		p = parent
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
