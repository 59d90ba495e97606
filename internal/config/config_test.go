package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	old := os.Args
	os.Args = append([]string{"skydrive"}, args...)
	t.Cleanup(func() { os.Args = old })
}

func TestLoadDefaults(t *testing.T) {
	var cfg Config
	cfg.LoadDefaults()

	require.NotEmpty(t, cfg.ConfigDir)
	require.Equal(t, "skydrive:", cfg.RemoteName)
	require.Equal(t, "rclone", cfg.RcloneBinary)
	require.Equal(t, ".skydrive", cfg.CloudConfigDir)
	require.Equal(t, 24*time.Hour, cfg.IndexRefreshAge)
	require.True(t, cfg.EncryptIndex)
	require.False(t, cfg.UseS3())
}

func TestDerivedPaths(t *testing.T) {
	cfg := Config{ConfigDir: "/tmp/skydrive"}

	require.Equal(t, "/tmp/skydrive/index.db", cfg.IndexPath())
	require.Equal(t, "/tmp/skydrive/index.key", cfg.KeyfilePath())
	require.Equal(t, "/tmp/skydrive/sync_jobs.json", cfg.RegistryPath())
	require.Equal(t, "/tmp/skydrive/jobs", cfg.JobsDir())
	require.Equal(t, "/tmp/skydrive/cache", cfg.CacheDir())
}

func TestLoadConfig_JsonOverlay(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"remote_name": "mydrive:",
		"index_refresh_age": "12h",
		"encrypt_index": false,
		"s3_bucket": "my-bucket",
		"s3_region": "eu-west-1"
	}`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	withArgs(t, "-c", file)

	cfg := LoadConfig()
	require.Equal(t, "mydrive:", cfg.RemoteName)
	require.Equal(t, 12*time.Hour, cfg.IndexRefreshAge)
	require.False(t, cfg.EncryptIndex)
	require.True(t, cfg.UseS3())
	require.Equal(t, "eu-west-1", cfg.S3Region)
	require.Equal(t, "rclone", cfg.RcloneBinary, "absent fields keep defaults")
}

func TestLoadConfig_FlagsOverrideJson(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"remote_name": "fromjson:"}`), 0o600))
	withArgs(t, "-c", file, "-r", "fromflag:", "-i", "6")

	cfg := LoadConfig()
	require.Equal(t, "fromflag:", cfg.RemoteName)
	require.Equal(t, 6*time.Hour, cfg.IndexRefreshAge)
}

func TestLoadConfig_BrokenJsonPanics(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(file, []byte("{nope"), 0o600))
	withArgs(t, "-c", file)

	require.Panics(t, func() { LoadConfig() })
}
