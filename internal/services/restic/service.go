package restic

import (
	"context"
	"encoding/json"
	"os/exec"

	"github.com/dermotduffy/restic-exporter/internal/models"
	"github.com/rs/zerolog"
)

// Stats modes restic supports for size accounting.
const (
	ModeRawData     = "raw-data"
	ModeRestoreSize = "restore-size"
)

const (
	commandStats     = "stats"
	commandSnapshots = "snapshots"

	keyGroupSnapshots = "snapshots"
)

// Service defines the interface for restic invocations.
type Service interface {
	Stats(ctx context.Context, mode string, snapshotIDs []string) *models.Stats
	Snapshots(ctx context.Context, groupBy string, last bool) []*models.Snapshot
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its combined output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
	settings models.ResticSettings
}

// New creates a new restic service.
func New(logger zerolog.Logger, settings models.ResticSettings) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
		settings: settings,
	}
}

// NewWithExecutor creates a new restic service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, settings models.ResticSettings, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
		settings: settings,
	}
}

// runJSON invokes restic with --json, the configured extra args and the
// given subcommand arguments, and returns the decoded output. Both a
// non-zero exit and undecodable output degrade to nil after logging.
func (s *Impl) runJSON(ctx context.Context, args ...string) any {
	cmdArgs := append([]string{"--json"}, s.settings.ExtraArgs...)
	cmdArgs = append(cmdArgs, args...)

	s.logger.Debug().Str("binary", s.settings.Binary).Strs("args", cmdArgs).Msg("running restic")
	output, err := s.executor.Execute(ctx, s.settings.Binary, cmdArgs...)
	if err != nil {
		s.logger.Error().Err(err).Strs("args", cmdArgs).Str("output", string(output)).Msg("restic command failed")
		return nil
	}

	var decoded any
	if err := json.Unmarshal(output, &decoded); err != nil {
		s.logger.Error().Strs("args", cmdArgs).Str("output", string(output)).Msg("restic yielded non-JSON output")
		return nil
	}
	return decoded
}

// Stats fetches aggregate statistics for a mode, scoped to the given
// snapshot ids or repository-wide when none are given. Returns nil when
// the invocation or decode fails.
func (s *Impl) Stats(ctx context.Context, mode string, snapshotIDs []string) *models.Stats {
	args := append([]string{commandStats, "--mode=" + mode}, snapshotIDs...)
	data, _ := s.runJSON(ctx, args...).(map[string]any)
	return DecodeStats(s.logger, data)
}

// Snapshots fetches the grouped snapshot listing and flattens it into
// decoded snapshots, skipping entries that fail to decode.
func (s *Impl) Snapshots(ctx context.Context, groupBy string, last bool) []*models.Snapshot {
	args := []string{commandSnapshots, "--group-by=" + groupBy}
	if last {
		args = append(args, "--last")
	}

	groups, _ := s.runJSON(ctx, args...).([]any)

	var snapshots []*models.Snapshot
	for _, group := range groups {
		grouped, ok := group.(map[string]any)
		if !ok {
			continue
		}
		entries, _ := grouped[keyGroupSnapshots].([]any)
		for _, entry := range entries {
			data, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if snapshot := DecodeSnapshot(s.logger, data); snapshot != nil {
				snapshots = append(snapshots, snapshot)
			}
		}
	}

	if len(snapshots) == 0 {
		s.logger.Warn().Str("group_by", groupBy).Msg("no valid snapshots found")
	}
	return snapshots
}
