// Package remote abstracts the cloud side of the application: listing the
// remote tree for indexing and moving small config documents for the
// cross-device registry exchange. Two backends are provided, one shelling
// out to an rclone-compatible CLI and one speaking S3 directly.
package remote

import (
	"context"
	"io"
	"time"
)

// Entry is one object or folder in the remote listing, the subset of the
// listing JSON the index cares about.
type Entry struct {
	Path    string    `json:"Path"`
	Name    string    `json:"Name"`
	Size    int64     `json:"Size"`
	ModTime time.Time `json:"ModTime"`
	IsDir   bool      `json:"IsDir"`
}

// Storage is the remote backend used by indexing and the config exchange.
//
// ListAll streams the recursive listing of the whole remote as a JSON array
// of Entry objects; the caller consumes it incrementally and must close it.
type Storage interface {
	ListAll(ctx context.Context) (io.ReadCloser, error)
	ListDir(ctx context.Context, dir string) ([]Entry, error)
	Cat(ctx context.Context, path string) ([]byte, error)
	CopyTo(ctx context.Context, localFile, remotePath string) error
	Mkdir(ctx context.Context, dir string) error
	DeleteFile(ctx context.Context, path string) error
	Remote() string
}
