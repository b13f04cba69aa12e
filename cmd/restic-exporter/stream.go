package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dermotduffy/restic-exporter/internal/config"
	"github.com/dermotduffy/restic-exporter/internal/models"
	"github.com/dermotduffy/restic-exporter/internal/services/export"
	"github.com/dermotduffy/restic-exporter/internal/services/generator"
	"github.com/dermotduffy/restic-exporter/internal/services/restic"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Restic status lines grow with the number of current_files on large
// backups.
const maxLineSize = 1024 * 1024

var (
	streamWindow      int
	streamBackupHost  string
	streamBackupPaths []string
	streamBackupTags  []string
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Decode restic --json backup output from stdin and export it",
	Long: `Decode the line-oriented JSON that restic emits during a backup and
export it as it arrives:

  restic backup --json /data | restic-exporter stream -c config.yaml

Progress messages are rate limited by export.status_window_seconds; the
completion summary is always exported, together with a final progress
record. The backup host and paths must be configured under export.backup
so the emitted records carry the right identity.`,
	RunE: runStream,
}

func init() {
	streamCmd.Flags().IntVar(&streamWindow, "status-window-seconds", 0, "minimum seconds between progress records, 0 disables (overrides export.status_window_seconds)")
	streamCmd.Flags().StringVar(&streamBackupHost, "backup-host", "", "host the backup runs as (overrides export.backup.host)")
	streamCmd.Flags().StringSliceVar(&streamBackupPaths, "backup-path", nil, "backed-up path, repeatable or comma separated (overrides export.backup.paths)")
	streamCmd.Flags().StringSliceVar(&streamBackupTags, "backup-tag", nil, "backup tag, repeatable or comma separated (overrides export.backup.tags)")
}

func runStream(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return err
	}

	// Flags override the config file.
	if cmd.Flags().Changed("status-window-seconds") {
		if streamWindow < 0 {
			return fmt.Errorf("status-window-seconds must not be negative")
		}
		cfg.Export.StatusWindow = time.Duration(streamWindow) * time.Second
	}
	if cmd.Flags().Changed("backup-host") {
		cfg.Export.Backup.Host = streamBackupHost
	}
	if cmd.Flags().Changed("backup-path") {
		cfg.Export.Backup.Paths = config.SplitList(streamBackupPaths)
	}
	if cmd.Flags().Changed("backup-tag") {
		cfg.Export.Backup.Tags = config.SplitList(streamBackupTags)
	}

	if cfg.Export.Backup.Host == "" || len(cfg.Export.Backup.Paths) == 0 {
		return fmt.Errorf("a backup host and at least one backup path must be configured for stream mode")
	}

	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("stdin is a terminal: pipe restic --json output into stream mode")
	}

	sinks, err := export.FromConfig(log.Logger, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to build sinks")
		return err
	}

	ctx := context.Background()
	for _, sink := range sinks {
		if err := sink.Start(ctx); err != nil {
			log.Error().Err(err).Msg("failed to start sink")
			return err
		}
	}

	resticSvc := restic.New(log.Logger, cfg.Restic)
	gen := generator.New(log.Logger, resticSvc, cfg.Export.GroupBy, !cfg.Export.All, cfg.Export.StatusWindow)

	key := &models.SnapshotKey{
		Hostname: cfg.Export.Backup.Host,
		Paths:    cfg.Export.Backup.Paths,
		Tags:     cfg.Export.Backup.Tags,
	}

	log.Info().Str("host", key.Hostname).Strs("paths", key.Paths).Msg("streaming backup output")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	// Sink failures are logged but never stop the stream: the backup on
	// the other end of the pipe must not block on a broken sink.
	var lines, exported int
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines++

		records := gen.PipedStats(line, key)
		if len(records) == 0 {
			continue
		}
		exported += len(records)

		for _, sink := range sinks {
			if err := sink.Export(ctx, records); err != nil {
				log.Error().Err(err).Msg("sink export failed")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("reading stdin failed")
		return err
	}

	log.Info().Int("lines", lines).Int("records", exported).Msg("stream finished")
	return nil
}
