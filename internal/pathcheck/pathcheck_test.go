package pathcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckPath_HealthyFolder(t *testing.T) {
	dir := t.TempDir()

	st := CheckPath(dir, 1024)
	require.True(t, st.OK(), "message: %s", st.Message)
	require.True(t, st.Exists)
	require.True(t, st.Writable)
	require.True(t, st.ValidMount)
	require.NotEmpty(t, st.MountPoint)
	require.NotEmpty(t, st.FilesystemType)
	require.Greater(t, st.AvailableBytes, uint64(0))
}

func TestCheckPath_NonexistentUsesAncestor(t *testing.T) {
	dir := t.TempDir()
	candidate := filepath.Join(dir, "not", "yet", "created")

	st := CheckPath(candidate, 0)
	require.False(t, st.Exists)
	require.True(t, st.ValidMount)
	require.True(t, st.Writable)
}

func TestCheckPath_InsufficientSpace(t *testing.T) {
	st := CheckPath(t.TempDir(), 1<<62)
	require.False(t, st.SufficientSpace)
	require.False(t, st.OK())
	require.Contains(t, st.Message, "available")
}

func TestMarker_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	require.Nil(t, ReadMarker(dir))

	require.NoError(t, WriteMarker(dir, "dev-1", "laptop", "Documents"))

	m := ReadMarker(dir)
	require.NotNil(t, m)
	require.Equal(t, "dev-1", m.DeviceID)
	require.Equal(t, "laptop", m.DeviceName)
	require.Equal(t, "Documents", m.RemotePath)
	require.False(t, m.CreatedAt.IsZero())

	RemoveMarker(dir)
	require.Nil(t, ReadMarker(dir))
}

func TestReadMarker_IgnoresGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, markerFileName), []byte("{oops"), 0o644))
	require.Nil(t, ReadMarker(dir))
}

func TestCheckConflicts_EmptyFolder(t *testing.T) {
	require.Equal(t, NoConflict, CheckConflicts(t.TempDir(), "dev-1"))
}

func TestCheckConflicts_NonexistentPath(t *testing.T) {
	candidate := filepath.Join(t.TempDir(), "new-folder")
	require.Equal(t, NoConflict, CheckConflicts(candidate, "dev-1"))
}

func TestCheckConflicts_FileInTheWay(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "taken")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	require.Equal(t, FileExists, CheckConflicts(file, "dev-1"))
}

func TestCheckConflicts_MarkerClassification(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteMarker(dir, "dev-1", "laptop", "Documents"))

	require.Equal(t, FolderSameDevice, CheckConflicts(dir, "dev-1"))
	require.Equal(t, FolderDifferentDevice, CheckConflicts(dir, "dev-2"))
}

func TestCheckConflicts_PopulatedUnmarkedFolder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("x"), 0o644))

	require.Equal(t, FolderUnknown, CheckConflicts(dir, "dev-1"))
}

func TestCheckConflicts_MarkerOnlyFolderIsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteMarker(dir, "dev-1", "laptop", "Documents"))
	RemoveMarker(dir)

	// A folder holding nothing but a stray marker-less file set is covered
	// above; a truly empty one is free.
	require.Equal(t, NoConflict, CheckConflicts(dir, "dev-1"))
}

func TestDefaultSyncLocation(t *testing.T) {
	loc := DefaultSyncLocation()
	require.NotEmpty(t, loc)
	require.Contains(t, loc, "SkyDrive")
}

func TestLocalConflictStrings(t *testing.T) {
	require.Equal(t, "none", NoConflict.String())
	require.Equal(t, "folder from another device", FolderDifferentDevice.String())
}
