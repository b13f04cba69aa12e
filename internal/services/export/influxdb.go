package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dermotduffy/restic-exporter/internal/models"
	client "github.com/influxdata/influxdb1-client/v2"
	"github.com/rs/zerolog"
)

// Measurement names written by the InfluxDB sink.
const (
	measurementBackupStatus  = "restic_backup_status"
	measurementBackupSummary = "restic_backup_summary"
	measurementSnapshots     = "restic_snapshots"
	measurementRepo          = "restic_repo"
)

// influxClient is the subset of the InfluxDB client the sink uses.
type influxClient interface {
	Write(bp client.BatchPoints) error
	Query(q client.Query) (*client.Response, error)
}

// InfluxDB exports records as measurement points to an InfluxDB 1.x
// database. Start must be called before Export.
type InfluxDB struct {
	logger zerolog.Logger
	cfg    *models.InfluxDBConfig
	client influxClient
	now    func() time.Time
}

// NewInfluxDB creates the InfluxDB sink.
func NewInfluxDB(logger zerolog.Logger, cfg *models.InfluxDBConfig) *InfluxDB {
	return &InfluxDB{
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// NewInfluxDBWithClient creates the InfluxDB sink with a custom client
// and time source (for testing).
func NewInfluxDBWithClient(logger zerolog.Logger, cfg *models.InfluxDBConfig, c influxClient, now func() time.Time) *InfluxDB {
	return &InfluxDB{
		logger: logger,
		cfg:    cfg,
		client: c,
		now:    now,
	}
}

// Start connects to InfluxDB and creates the database if it does not
// exist yet.
func (s *InfluxDB) Start(_ context.Context) error {
	if s.client == nil {
		addr := fmt.Sprintf("http://%s:%d", s.cfg.Host, s.cfg.Port)
		s.logger.Debug().
			Str("addr", addr).
			Str("username", s.cfg.Username).
			Str("database", s.cfg.Database).
			Msg("connecting to InfluxDB")

		c, err := client.NewHTTPClient(client.HTTPConfig{
			Addr:     addr,
			Username: s.cfg.Username,
			Password: s.cfg.Password,
		})
		if err != nil {
			return fmt.Errorf("create influxdb client: %w", err)
		}
		s.client = c
	}

	q := client.NewQuery(fmt.Sprintf("CREATE DATABASE %q", s.cfg.Database), "", "")
	response, err := s.client.Query(q)
	if err != nil {
		return fmt.Errorf("create influxdb database: %w", err)
	}
	if response.Error() != nil {
		return fmt.Errorf("create influxdb database: %w", response.Error())
	}
	return nil
}

// Export serializes the batch into points and submits them in a single
// write. Records of unhandled kinds are logged and skipped.
func (s *InfluxDB) Export(_ context.Context, records []models.Record) error {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{Database: s.cfg.Database})
	if err != nil {
		return fmt.Errorf("create influxdb batch: %w", err)
	}

	for _, record := range records {
		point, err := s.point(record)
		if err != nil {
			return fmt.Errorf("create influxdb point: %w", err)
		}
		if point != nil {
			bp.AddPoint(point)
		}
	}

	if len(bp.Points()) == 0 {
		return nil
	}

	s.logger.Debug().Int("points", len(bp.Points())).Msg("writing points to InfluxDB")
	return s.client.Write(bp)
}

func (s *InfluxDB) point(record models.Record) (*client.Point, error) {
	switch r := record.(type) {
	case *models.BackupStatus:
		return s.statusPoint(r)
	case *models.BackupSummary:
		return s.summaryPoint(r)
	case *models.Snapshot:
		return s.snapshotPoint(r)
	case *models.RepoStats:
		return s.repoPoint(r)
	default:
		s.logger.Warn().Type("record", record).Msg("skipping record of unhandled type")
		return nil, nil
	}
}

func (s *InfluxDB) statusPoint(status *models.BackupStatus) (*client.Point, error) {
	fields := map[string]interface{}{
		"total_files": status.FilesTotal,
		"total_bytes": status.BytesTotal,
	}
	addOptionalFloat(fields, "percent_done", status.PercentDone)
	addOptionalInt(fields, "files_done", status.FilesDone)
	addOptionalInt(fields, "bytes_done", status.BytesDone)
	addOptionalInt(fields, "seconds_elapsed", status.SecondsElapsed)
	addOptionalInt(fields, "seconds_remaining", status.SecondsRemaining)

	return client.NewPoint(measurementBackupStatus, keyTags(status.Key), fields, s.now())
}

func (s *InfluxDB) summaryPoint(summary *models.BackupSummary) (*client.Point, error) {
	fields := map[string]interface{}{
		"files_new":             summary.FilesNew,
		"files_changed":         summary.FilesChanged,
		"files_unmodified":      summary.FilesUnmodified,
		"dirs_new":              summary.DirsNew,
		"dirs_changed":          summary.DirsChanged,
		"dirs_unmodified":       summary.DirsUnmodified,
		"data_added":            summary.DataAdded,
		"snapshot_id":           summary.Key.SnapshotID,
		"total_files_processed": summary.FilesProcessed,
		"total_bytes_processed": summary.BytesProcessed,
		"total_duration":        summary.Duration,
	}
	addOptionalInt(fields, "data_blobs", summary.DataBlobs)
	addOptionalInt(fields, "tree_blobs", summary.TreeBlobs)

	return client.NewPoint(measurementBackupSummary, keyTags(summary.Key), fields, s.now())
}

// snapshotPoint writes the snapshot at its own timestamp, not the export
// time, so backfilled listings land where the backup actually ran.
func (s *InfluxDB) snapshotPoint(snapshot *models.Snapshot) (*client.Point, error) {
	fields := map[string]interface{}{
		"short_id": snapshot.Key.SnapshotID,
	}
	bundleFields(fields, snapshot.Stats)

	return client.NewPoint(measurementSnapshots, keyTags(snapshot.Key), fields, snapshot.Time)
}

func (s *InfluxDB) repoPoint(repo *models.RepoStats) (*client.Point, error) {
	fields := map[string]interface{}{}
	bundleFields(fields, &repo.Stats)
	if len(fields) == 0 {
		return nil, nil
	}

	return client.NewPoint(measurementRepo, nil, fields, s.now())
}

func keyTags(key *models.SnapshotKey) map[string]string {
	tags := map[string]string{
		"hostname": key.Hostname,
		"paths":    strings.Join(key.Paths, ","),
	}
	if len(key.Tags) > 0 {
		tags["tags"] = strings.Join(key.Tags, ",")
	}
	return tags
}

func bundleFields(fields map[string]interface{}, bundle *models.StatsBundle) {
	if bundle == nil {
		return
	}
	if bundle.Raw != nil {
		fields["raw_size"] = bundle.Raw.TotalSize
		fields["raw_file_count"] = bundle.Raw.TotalFileCount
		addOptionalInt(fields, "raw_blob_count", bundle.Raw.TotalBlobCount)
	}
	if bundle.Restore != nil {
		fields["restore_size"] = bundle.Restore.TotalSize
		fields["restore_file_count"] = bundle.Restore.TotalFileCount
		addOptionalInt(fields, "restore_blob_count", bundle.Restore.TotalBlobCount)
	}
}

func addOptionalInt(fields map[string]interface{}, key string, value *int64) {
	if value != nil {
		fields[key] = *value
	}
}

func addOptionalFloat(fields map[string]interface{}, key string, value *float64) {
	if value != nil {
		fields[key] = *value
	}
}
