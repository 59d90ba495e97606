package cloudcfg

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skydrive-app/skydrive/internal/identity"
	"github.com/skydrive-app/skydrive/internal/registry"
	"github.com/skydrive-app/skydrive/internal/remote"
	"github.com/stretchr/testify/require"
)

// memStorage is an in-memory remote: path -> content.
type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

func (m *memStorage) ListAll(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("[]")), nil
}

func (m *memStorage) ListDir(ctx context.Context, dir string) ([]remote.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir = strings.Trim(dir, "/")
	var entries []remote.Entry
	for p := range m.files {
		if path.Dir(p) == dir {
			entries = append(entries, remote.Entry{
				Path: p, Name: path.Base(p), Size: int64(len(m.files[p])),
			})
		}
	}
	return entries, nil
}

func (m *memStorage) Cat(ctx context.Context, p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[strings.Trim(p, "/")]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m *memStorage) CopyTo(ctx context.Context, localFile, remotePath string) error {
	data, err := os.ReadFile(localFile)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.files[strings.Trim(remotePath, "/")] = data
	m.mu.Unlock()
	return nil
}

func (m *memStorage) Mkdir(ctx context.Context, dir string) error { return nil }

func (m *memStorage) DeleteFile(ctx context.Context, p string) error {
	m.mu.Lock()
	delete(m.files, strings.Trim(p, "/"))
	m.mu.Unlock()
	return nil
}

func (m *memStorage) Remote() string { return "mem:" }

func newDeviceSetup(t *testing.T, storage *memStorage, deviceID, deviceName string) (*registry.Registry, *Exchange) {
	t.Helper()
	dir := t.TempDir()
	device := &identity.Device{ID: deviceID, Name: deviceName, FirstSeen: time.Now()}

	reg := registry.New(registry.Options{
		DocumentPath: filepath.Join(dir, "sync_jobs.json"),
		JobsDir:      filepath.Join(dir, "jobs"),
		Device:       device,
	})
	return reg, New(storage, reg, device, ".skydrive", nil)
}

func TestExportImport_Convergence(t *testing.T) {
	storage := newMemStorage()
	ctx := context.Background()

	regA, exchA := newDeviceSetup(t, storage, "aaaa0000-11112222", "laptop")
	_, exchB := newDeviceSetup(t, storage, "bbbb0000-33334444", "desktop")

	_, err := regA.CreateJob(ctx, "/home/a/docs", "Documents", registry.SyncTypeBisync)
	require.NoError(t, err)

	require.NoError(t, exchA.Export(ctx))

	candidates := exchB.Import(ctx)
	require.Len(t, candidates, 1)
	require.Equal(t, "Documents", candidates[0].RemotePath)
	require.Equal(t, "aaaa0000-11112222", candidates[0].OriginDeviceID)
	require.Equal(t, "laptop", candidates[0].OriginDeviceName)
}

func TestImport_ExcludesOwnAndAlreadySyncedRemotes(t *testing.T) {
	storage := newMemStorage()
	ctx := context.Background()

	regA, exchA := newDeviceSetup(t, storage, "device-a", "laptop")
	regB, exchB := newDeviceSetup(t, storage, "device-b", "desktop")

	_, err := regA.CreateJob(ctx, "/home/a/docs", "Documents", registry.SyncTypeBisync)
	require.NoError(t, err)
	_, err = regA.CreateJob(ctx, "/home/a/photos", "Photos", registry.SyncTypeBisync)
	require.NoError(t, err)
	require.NoError(t, exchA.Export(ctx))

	// B already syncs Documents under a different case.
	_, err = regB.CreateJob(ctx, "/home/b/documents", "documents/", registry.SyncTypeBisync)
	require.NoError(t, err)
	require.NoError(t, exchB.Export(ctx))

	candidates := exchB.Import(ctx)
	require.Len(t, candidates, 1)
	require.Equal(t, "Photos", candidates[0].RemotePath)

	require.Empty(t, exchA.Import(ctx), "A owns both remotes already")
}

func TestDeviceConfigs_SkipsMalformedManifests(t *testing.T) {
	storage := newMemStorage()
	ctx := context.Background()

	regA, exchA := newDeviceSetup(t, storage, "device-a", "laptop")
	_, err := regA.CreateJob(ctx, "/home/a/docs", "Documents", registry.SyncTypeBisync)
	require.NoError(t, err)
	require.NoError(t, exchA.Export(ctx))

	storage.mu.Lock()
	storage.files[".skydrive/device_broken.json"] = []byte("{not json")
	storage.files[".skydrive/unrelated.txt"] = []byte("ignore me")
	storage.mu.Unlock()

	manifests := exchA.DeviceConfigs(ctx)
	require.Len(t, manifests, 1)
	require.Equal(t, "device-a", manifests[0].DeviceID)
}

func TestDeviceConfigs_FailureMeansNoPeers(t *testing.T) {
	storage := newMemStorage()
	_, exch := newDeviceSetup(t, storage, "device-a", "laptop")

	// Nothing exported yet and no config folder: still no error, no peers.
	require.Empty(t, exch.DeviceConfigs(context.Background()))
}

func TestFolderMeta_RoundTripAndClassification(t *testing.T) {
	storage := newMemStorage()
	ctx := context.Background()

	_, exchA := newDeviceSetup(t, storage, "device-a", "laptop")
	_, exchB := newDeviceSetup(t, storage, "device-b", "desktop")

	origin, meta := exchA.ClassifyFolder(ctx, "Documents")
	require.Equal(t, FolderLegacy, origin)
	require.Nil(t, meta)

	require.NoError(t, exchA.WriteFolderMeta(ctx, "Documents"))

	origin, meta = exchA.ClassifyFolder(ctx, "Documents")
	require.Equal(t, FolderOwn, origin)
	require.Equal(t, "device-a", meta.DeviceID)

	origin, meta = exchB.ClassifyFolder(ctx, "Documents")
	require.Equal(t, FolderPeer, origin)
	require.Equal(t, "laptop", meta.DeviceName)
}
