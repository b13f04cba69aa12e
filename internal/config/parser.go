// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/dermotduffy/restic-exporter/internal/models"
	"github.com/spf13/viper"
)

// Environment variable consulted when no InfluxDB password is
// configured.
const envInfluxPassword = "INFLUXDB_PASSWORD"

const (
	defaultResticBinary   = "restic"
	defaultGroupBy        = "host,paths"
	defaultStatusWindow   = 10 * time.Second
	defaultInfluxHost     = "localhost"
	defaultInfluxPort     = 8086
	defaultInfluxDatabase = "restic"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{}

	// Parse restic invocation settings.
	cfg.Restic = models.ResticSettings{
		Binary:    p.expandEnv(p.v.GetString("restic.binary")),
		ExtraArgs: p.expandEnvSlice(p.v.GetStringSlice("restic.extra_args")),
	}
	if cfg.Restic.Binary == "" {
		cfg.Restic.Binary = defaultResticBinary
	}

	// Parse export settings.
	cfg.Export = models.ExportSettings{
		GroupBy:  p.v.GetString("export.group_by"),
		All:      p.v.GetBool("export.all"),
		LockFile: p.expandEnv(p.v.GetString("export.lock_file")),
		Backup: models.BackupTarget{
			Host:  p.v.GetString("export.backup.host"),
			Paths: SplitList(p.v.GetStringSlice("export.backup.paths")),
			Tags:  SplitList(p.v.GetStringSlice("export.backup.tags")),
		},
	}
	if cfg.Export.GroupBy == "" {
		cfg.Export.GroupBy = defaultGroupBy
	}

	// An explicit 0 disables status rate limiting; absence means the
	// default window.
	cfg.Export.StatusWindow = defaultStatusWindow
	if p.v.IsSet("export.status_window_seconds") {
		seconds := p.v.GetInt("export.status_window_seconds")
		if seconds < 0 {
			return nil, fmt.Errorf("export.status_window_seconds must not be negative")
		}
		cfg.Export.StatusWindow = time.Duration(seconds) * time.Second
	}

	// Parse optional InfluxDB sink config.
	if p.v.IsSet("influxdb") {
		influx, err := p.parseInfluxDB()
		if err != nil {
			return nil, err
		}
		cfg.InfluxDB = influx
	}

	// Parse optional archive sink config.
	if p.v.IsSet("archive") {
		archive, err := p.parseArchive()
		if err != nil {
			return nil, err
		}
		cfg.Archive = archive
	}

	// Parse optional Telegram sink config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	if cfg.InfluxDB == nil && cfg.Archive == nil && cfg.Telegram == nil {
		return nil, fmt.Errorf("at least one sink (influxdb, archive, telegram) must be configured")
	}

	return cfg, nil
}

func (p *Parser) parseInfluxDB() (*models.InfluxDBConfig, error) {
	influx := &models.InfluxDBConfig{
		Host:     p.v.GetString("influxdb.host"),
		Port:     p.v.GetInt("influxdb.port"),
		Username: p.expandEnv(p.v.GetString("influxdb.username")),
		Database: p.v.GetString("influxdb.database"),
	}

	if influx.Host == "" {
		influx.Host = defaultInfluxHost
	}
	if influx.Port == 0 {
		influx.Port = defaultInfluxPort
	}
	if influx.Database == "" {
		influx.Database = defaultInfluxDatabase
	}

	password, err := p.resolvePassword()
	if err != nil {
		return nil, err
	}
	influx.Password = password

	return influx, nil
}

// resolvePassword resolves the InfluxDB password from the configured
// literal, a password file, or the INFLUXDB_PASSWORD environment
// variable, in that order.
func (p *Parser) resolvePassword() (string, error) {
	if password := p.expandEnv(p.v.GetString("influxdb.password")); password != "" {
		return password, nil
	}

	if passwordFile := p.expandEnv(p.v.GetString("influxdb.password_file")); passwordFile != "" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("reading influxdb.password_file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	return os.Getenv(envInfluxPassword), nil
}

func (p *Parser) parseArchive() (*models.ArchiveConfig, error) {
	archive := &models.ArchiveConfig{
		Backend:          p.v.GetString("archive.backend"),
		Prefix:           p.v.GetString("archive.prefix"),
		Compression:      p.v.GetString("archive.compression"),
		EncryptionKeyEnv: p.v.GetString("archive.encryption_key_env"),
		Local: models.LocalStorageConfig{
			Path: p.expandEnv(p.v.GetString("archive.local.path")),
		},
		S3: models.S3StorageConfig{
			Endpoint:       p.v.GetString("archive.s3.endpoint"),
			Region:         p.v.GetString("archive.s3.region"),
			Bucket:         p.v.GetString("archive.s3.bucket"),
			AccessKey:      p.expandEnv(p.v.GetString("archive.s3.access_key")),
			SecretKey:      p.expandEnv(p.v.GetString("archive.s3.secret_key")),
			UseSSL:         p.v.GetBool("archive.s3.use_ssl"),
			ForcePathStyle: p.v.GetBool("archive.s3.force_path_style"),
		},
	}

	switch archive.Backend {
	case "", "local":
		archive.Backend = "local"
		if archive.Local.Path == "" {
			return nil, fmt.Errorf("archive.local.path is required when the archive backend is local")
		}
	case "s3":
		if archive.S3.Endpoint == "" || archive.S3.Bucket == "" {
			return nil, fmt.Errorf("archive.s3.endpoint and archive.s3.bucket are required when the archive backend is s3")
		}
	default:
		return nil, fmt.Errorf("archive.backend must be one of: local, s3")
	}

	switch archive.Compression {
	case "":
		archive.Compression = "none"
	case "none", "gzip", "zstd":
	default:
		return nil, fmt.Errorf("archive.compression must be one of: none, gzip, zstd")
	}

	return archive, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

func (p *Parser) expandEnvSlice(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, p.expandEnv(value))
	}
	return out
}

// SplitList splits every entry on commas and whitespace so values can be
// given either as lists, repeated flags, or single delimited strings.
func SplitList(values []string) []string {
	var out []string
	for _, value := range values {
		out = append(out, strings.FieldsFunc(value, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})...)
	}
	return out
}
