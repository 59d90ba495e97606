// Package cloudcfg implements serverless cross-device coordination: every
// device periodically writes its job manifest to a well-known cloud folder,
// and discovers peers by listing that folder and parsing the other
// manifests. The cloud store itself is the coordination bus; everything
// here is best-effort and eventually consistent.
package cloudcfg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/skydrive-app/skydrive/internal/identity"
	"github.com/skydrive-app/skydrive/internal/logging"
	"github.com/skydrive-app/skydrive/internal/registry"
	"github.com/skydrive-app/skydrive/internal/remote"
	"golang.org/x/sync/singleflight"
)

const manifestPrefix = "device_"

// PeerJob is the remote-side view of another device's job. Local paths are
// meaningless off-device and never leave it.
type PeerJob struct {
	RemotePath       string `json:"remote_path"`
	SyncType         string `json:"sync_type"`
	SyncMode         string `json:"sync_mode"`
	OriginDeviceID   string `json:"origin_device_id"`
	OriginDeviceName string `json:"origin_device_name"`
}

// Manifest is one device's published snapshot.
type Manifest struct {
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	LastUpdated time.Time `json:"last_updated"`
	Jobs        []PeerJob `json:"jobs"`
}

// Exchange publishes this device's manifest and reads the peers'.
type Exchange struct {
	storage   remote.Storage
	reg       *registry.Registry
	device    *identity.Device
	configDir string
	logger    logging.Logger

	discovery singleflight.Group
}

// New builds an Exchange rooted at configDir inside the remote (for
// example ".skydrive").
func New(storage remote.Storage, reg *registry.Registry, device *identity.Device, configDir string, logger logging.Logger) *Exchange {
	if logger == nil {
		logger = logging.NewDefault("", false)
	}
	return &Exchange{
		storage:   storage,
		reg:       reg,
		device:    device,
		configDir: strings.Trim(configDir, "/"),
		logger:    logger,
	}
}

func (e *Exchange) manifestPath(deviceID string) string {
	return path.Join(e.configDir, manifestPrefix+deviceID+".json")
}

// Export serializes the registry to this device's manifest file in the
// cloud config folder. Registry mutations call this through the debounced
// export hook.
func (e *Exchange) Export(ctx context.Context) error {
	jobs := e.reg.Jobs()
	m := Manifest{
		DeviceID:    e.device.ID,
		DeviceName:  e.device.Name,
		LastUpdated: time.Now().UTC(),
		Jobs:        make([]PeerJob, 0, len(jobs)),
	}
	for _, j := range jobs {
		m.Jobs = append(m.Jobs, PeerJob{
			RemotePath:       j.RemotePath,
			SyncType:         j.SyncType,
			SyncMode:         j.SyncMode,
			OriginDeviceID:   j.OriginDeviceID,
			OriginDeviceName: j.OriginDeviceName,
		})
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	tmp, err := os.CreateTemp("", "skydrive-manifest-*.json")
	if err != nil {
		return fmt.Errorf("manifest temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	tmp.Close()

	if err := e.storage.Mkdir(ctx, e.configDir); err != nil {
		e.logger.Debug(ctx, "config folder mkdir", "error", err)
	}
	if err := e.storage.CopyTo(ctx, tmp.Name(), e.manifestPath(e.device.ID)); err != nil {
		return fmt.Errorf("upload manifest: %w", err)
	}

	e.logger.Info(ctx, "manifest exported", "jobs", len(m.Jobs))
	return nil
}

// DeviceConfigs lists the config folder and parses every peer manifest.
// Concurrent calls collapse into one listing; any failure degrades to "no
// peers found".
func (e *Exchange) DeviceConfigs(ctx context.Context) []Manifest {
	v, _, _ := e.discovery.Do("discover", func() (any, error) {
		return e.fetchManifests(ctx), nil
	})
	manifests, _ := v.([]Manifest)
	return manifests
}

func (e *Exchange) fetchManifests(ctx context.Context) []Manifest {
	entries, err := e.storage.ListDir(ctx, e.configDir)
	if err != nil {
		e.logger.Warn(ctx, "peer discovery failed", "error", err)
		return nil
	}

	var manifests []Manifest
	for _, entry := range entries {
		name := path.Base(entry.Path)
		if entry.IsDir || !strings.HasPrefix(name, manifestPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := e.storage.Cat(ctx, path.Join(e.configDir, name))
		if err != nil {
			e.logger.Warn(ctx, "fetch peer manifest", "name", name, "error", err)
			continue
		}
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil || m.DeviceID == "" {
			e.logger.Warn(ctx, "skipping malformed peer manifest", "name", name, "error", err)
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests
}

// Import returns peer jobs whose remote path this device does not sync yet,
// the candidates for "set this folder up here too".
func (e *Exchange) Import(ctx context.Context) []PeerJob {
	owned := make(map[string]bool)
	for _, j := range e.reg.Jobs() {
		owned[registry.NormalizeRemotePath(j.RemotePath)] = true
	}

	var candidates []PeerJob
	seen := make(map[string]bool)
	for _, m := range e.DeviceConfigs(ctx) {
		if m.DeviceID == e.device.ID {
			continue
		}
		for _, j := range m.Jobs {
			key := registry.NormalizeRemotePath(j.RemotePath)
			if owned[key] || seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, j)
		}
	}
	return candidates
}
