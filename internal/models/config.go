// Package models contains the data structures used throughout restic-exporter.
package models

import "time"

// Config holds the complete configuration for an exporter run.
type Config struct {
	Restic   ResticSettings
	Export   ExportSettings
	InfluxDB *InfluxDBConfig // nil if not configured
	Archive  *ArchiveConfig  // nil if not configured
	Telegram *TelegramConfig // nil if not configured
}

// ResticSettings holds how the restic binary is invoked.
type ResticSettings struct {
	Binary    string   // path to the restic binary
	ExtraArgs []string // fixed args inserted after --json, e.g. -r <repo>
}

// ExportSettings holds pipeline behavior shared by all sinks.
type ExportSettings struct {
	GroupBy      string        // snapshot grouping dimensions, comma-joined
	All          bool          // export every snapshot instead of the last per group
	StatusWindow time.Duration // minimum spacing between progress records; 0 disables
	LockFile     string        // collect run lock; empty picks a default under the temp dir
	Backup       BackupTarget
}

// BackupTarget identifies the backup observed in streaming mode.
type BackupTarget struct {
	Host  string
	Paths []string
	Tags  []string
}

// InfluxDBConfig holds InfluxDB 1.x sink configuration. Password is
// already resolved (literal, password file, or environment).
type InfluxDBConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// ArchiveConfig holds the JSONL archive sink configuration.
type ArchiveConfig struct {
	Backend          string // "local" or "s3"
	Prefix           string
	Compression      string // "none", "gzip" or "zstd"
	EncryptionKeyEnv string // env var holding a 64-hex-char key; empty disables
	Local            LocalStorageConfig
	S3               S3StorageConfig
}

// LocalStorageConfig holds the local-directory archive backend settings.
type LocalStorageConfig struct {
	Path string
}

// S3StorageConfig holds the S3 archive backend settings.
type S3StorageConfig struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}
