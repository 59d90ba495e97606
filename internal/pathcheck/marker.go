package pathcheck

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skydrive-app/skydrive/internal/filex"
)

// markerFileName is the sidecar left inside a synced local folder. It is
// only ever read for conflict disambiguation, never for content sync.
const markerFileName = ".skydrive-local.json"

// Marker records which device set up a local folder and for which remote.
type Marker struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	RemotePath string    `json:"remote_path"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReadMarker loads the sidecar of a local folder. A missing or unreadable
// marker returns nil: the folder is simply unmarked.
func ReadMarker(folder string) *Marker {
	data, err := os.ReadFile(filepath.Join(folder, markerFileName))
	if err != nil {
		return nil
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil || m.DeviceID == "" {
		return nil
	}
	return &m
}

// WriteMarker stamps a local folder as synced by the given device.
func WriteMarker(folder, deviceID, deviceName, remotePath string) error {
	m := Marker{
		DeviceID:   deviceID,
		DeviceName: deviceName,
		RemotePath: remotePath,
		CreatedAt:  time.Now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal folder marker: %w", err)
	}
	if err := filex.WriteAtomic(filepath.Join(folder, markerFileName), data, 0o644); err != nil {
		return fmt.Errorf("write folder marker: %w", err)
	}
	return nil
}

// RemoveMarker deletes the sidecar, used when a job is torn down.
func RemoveMarker(folder string) {
	_ = os.Remove(filepath.Join(folder, markerFileName))
}
