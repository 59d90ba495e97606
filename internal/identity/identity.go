// Package identity manages the per-device identity used to scope sync job
// ownership across devices sharing one remote.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/skydrive-app/skydrive/internal/cryptox"
	"github.com/skydrive-app/skydrive/internal/filex"
	"github.com/skydrive-app/skydrive/internal/randx"
)

const fileName = "device.json"

// Device is the persisted identity document. The ID is stable for the
// lifetime of the install; Name is a user-editable label.
type Device struct {
	ID        string    `json:"device_id"`
	Name      string    `json:"device_name"`
	FirstSeen time.Time `json:"first_seen"`
}

// Load reads the device identity from configDir, creating one on first run.
func Load(configDir string) (*Device, error) {
	path := filepath.Join(configDir, fileName)

	data, err := os.ReadFile(path)
	if err == nil {
		var d Device
		if jsonErr := json.Unmarshal(data, &d); jsonErr == nil && d.ID != "" {
			return &d, nil
		}
		// Unreadable identity: regenerate rather than fail startup.
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read device identity: %w", err)
	}

	d, err := generate()
	if err != nil {
		return nil, err
	}
	if err := save(path, d); err != nil {
		return nil, err
	}
	return d, nil
}

// SetName updates the device label and persists it.
func SetName(configDir string, d *Device, name string) error {
	d.Name = name
	return save(filepath.Join(configDir, fileName), d)
}

// generate builds a new identity. The ID is 8 hex chars of the hashed
// machine id plus 8 random hex chars, so ids from the same machine share a
// recognizable prefix while installs stay distinct.
func generate() (*Device, error) {
	machinePart := machineHashPrefix()

	randPart, err := randx.HexString(8)
	if err != nil {
		// uuid carries its own entropy source as a fallback.
		randPart = uuid.NewString()[:8]
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "device"
	}

	return &Device{
		ID:        machinePart + "-" + randPart,
		Name:      host,
		FirstSeen: time.Now().UTC(),
	}, nil
}

func machineHashPrefix() string {
	sum := sha256.Sum256(cryptox.MachineSecret())
	return hex.EncodeToString(sum[:])[:8]
}

func save(path string, d *Device) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal device identity: %w", err)
	}
	if err := filex.WriteAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("save device identity: %w", err)
	}
	return nil
}
