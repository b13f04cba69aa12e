package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dermotduffy/restic-exporter/internal/config"
	"github.com/dermotduffy/restic-exporter/internal/lock"
	"github.com/dermotduffy/restic-exporter/internal/services/export"
	"github.com/dermotduffy/restic-exporter/internal/services/generator"
	"github.com/dermotduffy/restic-exporter/internal/services/restic"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	collectBinary  string
	collectGroupBy string
	collectAll     bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect snapshot and repository statistics and export them",
	Long: `Collect statistics in one shot:
1. List snapshots, grouped and reduced to the latest per group (unless export.all is set)
2. Fetch raw-data and restore-size stats for every identified snapshot
3. Fetch repository-wide raw-data and restore-size stats
4. Export the combined batch to every configured sink

Use as a one-shot command with an external scheduler (cron, systemd timer, etc.)`,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().StringVar(&collectBinary, "restic-binary", "", "restic binary to invoke (overrides restic.binary)")
	collectCmd.Flags().StringVar(&collectGroupBy, "group-by", "", "snapshot grouping dimensions (overrides export.group_by)")
	collectCmd.Flags().BoolVar(&collectAll, "all", false, "export every snapshot instead of the last per group (overrides export.all)")
}

func runCollect(cmd *cobra.Command, args []string) error {
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
	if cmd.Flags().Changed("restic-binary") {
		cfg.Restic.Binary = collectBinary
	}
	if cmd.Flags().Changed("group-by") {
		cfg.Export.GroupBy = collectGroupBy
	}
	if cmd.Flags().Changed("all") {
		cfg.Export.All = collectAll
	}

	log.Info().
		Str("config", configFile).
		Str("group_by", cfg.Export.GroupBy).
		Bool("all", cfg.Export.All).
		Msg("configuration loaded")

	// Keep overlapping scheduler runs from hammering the repository.
	runLock, err := lock.Acquire(cfg.Export.LockFile)
	if err != nil {
		log.Error().Err(err).Msg("failed to acquire run lock")
		return err
	}
	defer func() {
		if err := runLock.Release(); err != nil {
			log.Warn().Err(err).Msg("failed to release run lock")
		}
	}()

	sinks, err := export.FromConfig(log.Logger, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to build sinks")
		return err
	}

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	for _, sink := range sinks {
		if err := sink.Start(ctx); err != nil {
			log.Error().Err(err).Msg("failed to start sink")
			return err
		}
	}

	resticSvc := restic.New(log.Logger, cfg.Restic)
	gen := generator.New(log.Logger, resticSvc, cfg.Export.GroupBy, !cfg.Export.All, cfg.Export.StatusWindow)

	records := gen.SnapshotStats(ctx)
	records = append(records, gen.RepoStats(ctx)...)

	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Msg("collection interrupted")
		return err
	}

	log.Info().Int("records", len(records)).Int("sinks", len(sinks)).Msg("exporting collected records")

	// Every sink gets its attempt even when an earlier one fails.
	var failed bool
	for _, sink := range sinks {
		if err := sink.Export(ctx, records); err != nil {
			log.Error().Err(err).Msg("sink export failed")
			failed = true
		}
	}
	if failed {
		return errors.New("one or more sinks failed to export")
	}

	log.Info().Msg("collection completed successfully")
	return nil
}
