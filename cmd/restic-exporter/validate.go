package main

import (
	"fmt"
	"os"

	"github.com/dermotduffy/restic-exporter/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without invoking restic or exporting anything.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Restic:")
	fmt.Printf("  Binary: %s\n", cfg.Restic.Binary)
	if len(cfg.Restic.ExtraArgs) > 0 {
		fmt.Printf("  Extra args: %v\n", cfg.Restic.ExtraArgs)
	}
	fmt.Println()
	fmt.Println("Export:")
	fmt.Printf("  Group by: %s\n", cfg.Export.GroupBy)
	fmt.Printf("  All snapshots: %v\n", cfg.Export.All)
	fmt.Printf("  Status window: %s\n", cfg.Export.StatusWindow)
	if cfg.Export.LockFile != "" {
		fmt.Printf("  Lock file: %s\n", cfg.Export.LockFile)
	}

	if cfg.Export.Backup.Host != "" {
		fmt.Println()
		fmt.Println("Backup Target (stream mode):")
		fmt.Printf("  Host: %s\n", cfg.Export.Backup.Host)
		fmt.Printf("  Paths: %v\n", cfg.Export.Backup.Paths)
		if len(cfg.Export.Backup.Tags) > 0 {
			fmt.Printf("  Tags: %v\n", cfg.Export.Backup.Tags)
		}
	}

	fmt.Println()
	fmt.Println("Sinks:")
	fmt.Printf("  InfluxDB: %v\n", cfg.InfluxDB != nil)
	fmt.Printf("  Archive: %v\n", cfg.Archive != nil)
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.InfluxDB != nil {
		fmt.Println()
		fmt.Println("InfluxDB Configuration:")
		fmt.Printf("  Host: %s\n", cfg.InfluxDB.Host)
		fmt.Printf("  Port: %d\n", cfg.InfluxDB.Port)
		fmt.Printf("  Database: %s\n", cfg.InfluxDB.Database)
		if cfg.InfluxDB.Username != "" {
			fmt.Printf("  Username: %s\n", cfg.InfluxDB.Username)
		}
		fmt.Printf("  Password: %s\n", secretStatus(cfg.InfluxDB.Password))
	}

	if cfg.Archive != nil {
		fmt.Println()
		fmt.Println("Archive Configuration:")
		fmt.Printf("  Backend: %s\n", cfg.Archive.Backend)
		fmt.Printf("  Compression: %s\n", cfg.Archive.Compression)
		fmt.Printf("  Encrypted: %v\n", cfg.Archive.EncryptionKeyEnv != "")
		switch cfg.Archive.Backend {
		case "local":
			fmt.Printf("  Path: %s\n", cfg.Archive.Local.Path)
		case "s3":
			fmt.Printf("  Endpoint: %s\n", cfg.Archive.S3.Endpoint)
			fmt.Printf("  Bucket: %s\n", cfg.Archive.S3.Bucket)
		}
	}

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	return nil
}

func secretStatus(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	return "(configured)"
}
