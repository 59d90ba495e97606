package cloudcfg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"
)

// metaFileName is the sidecar dropped into every synced cloud folder. It
// lets a device that finds an already-populated remote folder tell whether
// the folder is its own earlier sync, another device's, or predates the
// sidecar scheme entirely.
const metaFileName = ".skydrive-meta.json"

// FolderMeta describes which device set up a cloud folder for syncing.
type FolderMeta struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Folder     string    `json:"folder"`
	CreatedAt  time.Time `json:"created_at"`
}

// FolderOrigin classifies a remote folder relative to this device.
type FolderOrigin int

const (
	// FolderLegacy means the folder exists without a sidecar.
	FolderLegacy FolderOrigin = iota
	// FolderOwn means this device wrote the sidecar.
	FolderOwn
	// FolderPeer means another device wrote the sidecar.
	FolderPeer
)

// ReadFolderMeta fetches the sidecar of a remote folder. A missing or
// unreadable sidecar returns (nil, nil): the folder is simply unmarked.
func (e *Exchange) ReadFolderMeta(ctx context.Context, folder string) (*FolderMeta, error) {
	data, err := e.storage.Cat(ctx, path.Join(folder, metaFileName))
	if err != nil {
		return nil, nil
	}
	var m FolderMeta
	if err := json.Unmarshal(data, &m); err != nil || m.DeviceID == "" {
		return nil, nil
	}
	return &m, nil
}

// WriteFolderMeta marks a remote folder as synced by this device.
func (e *Exchange) WriteFolderMeta(ctx context.Context, folder string) error {
	m := FolderMeta{
		DeviceID:   e.device.ID,
		DeviceName: e.device.Name,
		Folder:     folder,
		CreatedAt:  time.Now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal folder meta: %w", err)
	}

	tmp, err := os.CreateTemp("", "skydrive-foldermeta-*.json")
	if err != nil {
		return fmt.Errorf("folder meta temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write folder meta: %w", err)
	}
	tmp.Close()

	if err := e.storage.CopyTo(ctx, tmp.Name(), path.Join(folder, metaFileName)); err != nil {
		return fmt.Errorf("upload folder meta: %w", err)
	}
	return nil
}

// ClassifyFolder reports whether a populated remote folder belongs to this
// device, a peer, or predates folder marking.
func (e *Exchange) ClassifyFolder(ctx context.Context, folder string) (FolderOrigin, *FolderMeta) {
	m, _ := e.ReadFolderMeta(ctx, folder)
	switch {
	case m == nil:
		return FolderLegacy, nil
	case m.DeviceID == e.device.ID:
		return FolderOwn, m
	default:
		return FolderPeer, m
	}
}
