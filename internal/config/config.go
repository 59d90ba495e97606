// Package config holds runtime settings for the skydrive agent. Values are
// resolved defaults-first, then overlaid from an optional JSON file, then
// from command-line flags, with later sources taking precedence.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the skydrive agent.
//
// Fields:
//   - ConfigDir: local folder for the index database, registry and identity.
//   - RemoteName: rclone-style remote name ("skydrive:") for the CLI backend.
//   - RcloneBinary: path or name of the rclone-compatible binary.
//   - CloudConfigDir: cloud folder holding per-device manifests.
//   - IndexRefreshAge: how stale the full index may get before a reindex.
//   - DiscoveryInterval: how often peer manifests are re-read.
//   - EncryptIndex: whether the index database is encrypted at rest.
//   - UsePassphrase: wrap the index key with a passphrase instead of the
//     machine id.
//   - S3 fields: switch the remote backend to a direct S3 bucket.
type Config struct {
	ConfigDir         string
	LogFile           string
	Debug             bool
	RemoteName        string
	RcloneBinary      string
	CloudConfigDir    string
	IndexRefreshAge   time.Duration
	DiscoveryInterval time.Duration
	EncryptIndex      bool
	UsePassphrase     bool

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ConfigDir = defaultConfigDir()
	c.RemoteName = "skydrive:"
	c.RcloneBinary = "rclone"
	c.CloudConfigDir = ".skydrive"
	c.IndexRefreshAge = 24 * time.Hour
	c.DiscoveryInterval = 5 * time.Minute
	c.EncryptIndex = true
}

// IndexPath is the index database file inside ConfigDir.
func (c *Config) IndexPath() string { return filepath.Join(c.ConfigDir, "index.db") }

// KeyfilePath is the wrapped index key inside ConfigDir.
func (c *Config) KeyfilePath() string { return filepath.Join(c.ConfigDir, "index.key") }

// RegistryPath is the sync job document inside ConfigDir.
func (c *Config) RegistryPath() string { return filepath.Join(c.ConfigDir, "sync_jobs.json") }

// JobsDir holds the per-job descriptor files.
func (c *Config) JobsDir() string { return filepath.Join(c.ConfigDir, "jobs") }

// CacheDir holds transfer-tool state cleaned up with stale jobs.
func (c *Config) CacheDir() string { return filepath.Join(c.ConfigDir, "cache") }

// UseS3 reports whether the direct S3 backend is configured.
func (c *Config) UseS3() bool { return c.S3Bucket != "" }

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "skydrive")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "skydrive")
	}
	return filepath.Join(home, ".skydrive")
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
