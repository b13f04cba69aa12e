package generator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dermotduffy/restic-exporter/internal/models"
	"github.com/dermotduffy/restic-exporter/internal/services/restic"
	"github.com/rs/zerolog"
)

// Service defines the interface for turning restic output into batches of
// exportable records.
type Service interface {
	SnapshotStats(ctx context.Context) []models.Record
	RepoStats(ctx context.Context) []models.Record
	PipedStats(line []byte, key *models.SnapshotKey) []models.Record
}

// Impl implements the Service interface.
type Impl struct {
	restic  restic.Service
	logger  zerolog.Logger
	groupBy string
	last    bool
	window  time.Duration

	now          func() time.Time
	lastStatusAt time.Time
}

// New creates a new stats generator. A window of 0 disables rate
// limiting of backup status messages.
func New(logger zerolog.Logger, resticService restic.Service, groupBy string, last bool, window time.Duration) *Impl {
	return NewWithClock(logger, resticService, groupBy, last, window, time.Now)
}

// NewWithClock creates a new stats generator with a custom time source
// (for testing).
func NewWithClock(logger zerolog.Logger, resticService restic.Service, groupBy string, last bool, window time.Duration, now func() time.Time) *Impl {
	return &Impl{
		restic:  resticService,
		logger:  logger,
		groupBy: groupBy,
		last:    last,
		window:  window,
		now:     now,
	}
}

// SnapshotStats fetches the snapshot listing and enriches every snapshot
// that carries an id with a stats bundle built from one raw-data and one
// restore-size stats call scoped to that id.
func (g *Impl) SnapshotStats(ctx context.Context) []models.Record {
	snapshots := g.restic.Snapshots(ctx, g.groupBy, g.last)

	records := make([]models.Record, 0, len(snapshots))
	for _, snapshot := range snapshots {
		if snapshot.Key != nil && snapshot.Key.SnapshotID != "" {
			ids := []string{snapshot.Key.SnapshotID}
			raw := g.restic.Stats(ctx, restic.ModeRawData, ids)
			restore := g.restic.Stats(ctx, restic.ModeRestoreSize, ids)
			snapshot.Stats = &models.StatsBundle{Raw: raw, Restore: restore}
		}
		records = append(records, snapshot)
	}
	return records
}

// RepoStats issues the two stats calls repository-wide and wraps the
// result as a single record.
func (g *Impl) RepoStats(ctx context.Context) []models.Record {
	raw := g.restic.Stats(ctx, restic.ModeRawData, nil)
	restore := g.restic.Stats(ctx, restic.ModeRestoreSize, nil)
	return []models.Record{
		&models.RepoStats{Stats: models.StatsBundle{Raw: raw, Restore: restore}},
	}
}

// PipedStats parses one line of restic --json output into records. Lines
// that are not JSON objects or carry no recognized message type yield an
// empty batch; restic emits further message types (error, verbose_status)
// that are deliberately dropped here.
func (g *Impl) PipedStats(line []byte, key *models.SnapshotKey) []models.Record {
	var data map[string]any
	if err := json.Unmarshal(line, &data); err != nil {
		g.logger.Debug().Msg("ignoring non-JSON input line")
		return nil
	}

	messageType, _ := data[restic.KeyMessageType].(string)
	switch messageType {
	case restic.MessageTypeStatus:
		return g.statusRecords(data, key)
	case restic.MessageTypeSummary:
		return g.summaryRecords(data, key)
	}
	return nil
}

func (g *Impl) statusRecords(data map[string]any, key *models.SnapshotKey) []models.Record {
	now := g.now()
	if g.window > 0 && !g.lastStatusAt.IsZero() && now.Sub(g.lastStatusAt) < g.window {
		return nil
	}

	// The window slot is consumed before decoding: a status message that
	// fails to decode still counts against the rate limit.
	g.lastStatusAt = now

	status := restic.DecodeBackupStatus(g.logger, data, key)
	if status == nil {
		return nil
	}
	return []models.Record{status}
}

func (g *Impl) summaryRecords(data map[string]any, key *models.SnapshotKey) []models.Record {
	summary := restic.DecodeBackupSummary(g.logger, data, key)
	if summary == nil {
		return nil
	}

	// A terminal 100% status precedes the summary so sinks see the
	// progress series close out before the completion record.
	percent := 1.0
	filesDone := summary.FilesProcessed
	bytesDone := summary.BytesProcessed
	elapsed := int64(summary.Duration)
	status := &models.BackupStatus{
		Key:            summary.Key,
		FilesTotal:     summary.FilesProcessed,
		BytesTotal:     summary.BytesProcessed,
		PercentDone:    &percent,
		FilesDone:      &filesDone,
		BytesDone:      &bytesDone,
		SecondsElapsed: &elapsed,
	}
	return []models.Record{status, summary}
}
