package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/flagx"
	"github.com/dmitrijs2005/gophdrive/internal/timex"
	"go.yaml.in/yaml/v3"
)

// FileConfig is the on-disk shape of the configuration, readable as JSON or
// YAML. Durations accept strings such as "15m" or integer nanoseconds.
// Absent keys leave the current value untouched.
type FileConfig struct {
	HTTPAddr      string `json:"http_addr" yaml:"http_addr"`
	MetadataStore string `json:"metadata_store" yaml:"metadata_store"`
	DatabaseDSN   string `json:"database_dsn" yaml:"database_dsn"`
	SecretKey     string `json:"secret_key" yaml:"secret_key"`

	EncryptionPassword string `json:"encryption_password" yaml:"encryption_password"`
	EncryptionSalt     string `json:"encryption_salt" yaml:"encryption_salt"`

	StorageBackend        string          `json:"storage_backend" yaml:"storage_backend"`
	StorageRoot           string          `json:"storage_root" yaml:"storage_root"`
	S3AccessKey           string          `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey           string          `json:"s3_secret_key" yaml:"s3_secret_key"`
	S3Bucket              string          `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region              string          `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint        string          `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3UseSSL              *bool           `json:"s3_use_ssl" yaml:"s3_use_ssl"`
	StorageRetryAttempts  *int            `json:"storage_retry_attempts" yaml:"storage_retry_attempts"`
	StorageRetryBaseDelay *timex.Duration `json:"storage_retry_base_delay" yaml:"storage_retry_base_delay"`

	TempDir            string `json:"temp_dir" yaml:"temp_dir"`
	ThumbnailWidth     int    `json:"thumbnail_width" yaml:"thumbnail_width"`
	ThumbnailMaxSource int64  `json:"thumbnail_max_source" yaml:"thumbnail_max_source"`
	FFmpegPath         string `json:"ffmpeg_path" yaml:"ffmpeg_path"`

	StreamTokenValidityDuration   *timex.Duration `json:"stream_token_validity_duration" yaml:"stream_token_validity_duration"`
	DownloadTokenValidityDuration *timex.Duration `json:"download_token_validity_duration" yaml:"download_token_validity_duration"`
	TokenPurgeInterval            *timex.Duration `json:"token_purge_interval" yaml:"token_purge_interval"`
	RequireVerifiedEmail          *bool           `json:"require_verified_email" yaml:"require_verified_email"`

	LogDriver string `json:"log_driver" yaml:"log_driver"`
	LogFormat string `json:"log_format" yaml:"log_format"`
	LogLevel  string `json:"log_level" yaml:"log_level"`
}

// parseFile loads the file named by -c / -config into config. The encoding
// follows the extension (.yaml/.yml or JSON). Without the flag nothing is
// loaded; an unreadable or malformed file panics, as the server cannot
// start with a half-applied configuration.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &FileConfig{}
	if flagx.FormatOf(path) == flagx.FormatYAML {
		err = yaml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.MetadataStore, c.MetadataStore)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.EncryptionPassword, c.EncryptionPassword)
	setString(&config.EncryptionSalt, c.EncryptionSalt)

	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.StorageRoot, c.StorageRoot)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.S3UseSSL != nil {
		config.S3UseSSL = *c.S3UseSSL
	}
	if c.StorageRetryAttempts != nil {
		config.StorageRetryAttempts = *c.StorageRetryAttempts
	}
	setDuration(&config.StorageRetryBaseDelay, c.StorageRetryBaseDelay)

	setString(&config.TempDir, c.TempDir)
	if c.ThumbnailWidth > 0 {
		config.ThumbnailWidth = c.ThumbnailWidth
	}
	if c.ThumbnailMaxSource > 0 {
		config.ThumbnailMaxSource = c.ThumbnailMaxSource
	}
	setString(&config.FFmpegPath, c.FFmpegPath)

	setDuration(&config.StreamTokenValidityDuration, c.StreamTokenValidityDuration)
	setDuration(&config.DownloadTokenValidityDuration, c.DownloadTokenValidityDuration)
	setDuration(&config.TokenPurgeInterval, c.TokenPurgeInterval)
	if c.RequireVerifiedEmail != nil {
		config.RequireVerifiedEmail = *c.RequireVerifiedEmail
	}

	setString(&config.LogDriver, c.LogDriver)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)
}
