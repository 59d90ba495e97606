package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/skydrive-app/skydrive/internal/flagx"
	"github.com/skydrive-app/skydrive/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "24h"
// or as integer nanoseconds.
type JsonConfig struct {
	ConfigDir         *string         `json:"config_dir"`
	LogFile           *string         `json:"log_file"`
	Debug             *bool           `json:"debug"`
	RemoteName        *string         `json:"remote_name"`
	RcloneBinary      *string         `json:"rclone_binary"`
	CloudConfigDir    *string         `json:"cloud_config_dir"`
	IndexRefreshAge   *timex.Duration `json:"index_refresh_age"`
	DiscoveryInterval *timex.Duration `json:"discovery_interval"`
	EncryptIndex      *bool           `json:"encrypt_index"`
	UsePassphrase     *bool           `json:"use_passphrase"`
	S3Bucket          *string         `json:"s3_bucket"`
	S3Region          *string         `json:"s3_region"`
	S3Endpoint        *string         `json:"s3_endpoint"`
	S3AccessKey       *string         `json:"s3_access_key"`
	S3SecretKey       *string         `json:"s3_secret_key"`
}

// parseJson overlays cfg with values from the JSON file named by the -c or
// -config flag. Absent fields keep their defaults; read or unmarshal errors
// panic, surfacing a broken config file immediately at startup.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setIf(&cfg.ConfigDir, jc.ConfigDir)
	setIf(&cfg.LogFile, jc.LogFile)
	setIf(&cfg.Debug, jc.Debug)
	setIf(&cfg.RemoteName, jc.RemoteName)
	setIf(&cfg.RcloneBinary, jc.RcloneBinary)
	setIf(&cfg.CloudConfigDir, jc.CloudConfigDir)
	setIf(&cfg.EncryptIndex, jc.EncryptIndex)
	setIf(&cfg.UsePassphrase, jc.UsePassphrase)
	setIf(&cfg.S3Bucket, jc.S3Bucket)
	setIf(&cfg.S3Region, jc.S3Region)
	setIf(&cfg.S3Endpoint, jc.S3Endpoint)
	setIf(&cfg.S3AccessKey, jc.S3AccessKey)
	setIf(&cfg.S3SecretKey, jc.S3SecretKey)

	if jc.IndexRefreshAge != nil {
		cfg.IndexRefreshAge = time.Duration(jc.IndexRefreshAge.Duration)
	}
	if jc.DiscoveryInterval != nil {
		cfg.DiscoveryInterval = time.Duration(jc.DiscoveryInterval.Duration)
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
