package restic

import (
	"errors"
	"fmt"
	"time"

	"github.com/dermotduffy/restic-exporter/internal/models"
	"github.com/rs/zerolog"
)

// Message discriminators of restic's streamed --json output.
const (
	KeyMessageType     = "message_type"
	MessageTypeStatus  = "status"
	MessageTypeSummary = "summary"
)

// JSON keys of restic stats output.
const (
	keyStatsTotalSize      = "total_size"
	keyStatsTotalFileCount = "total_file_count"
	keyStatsTotalBlobCount = "total_blob_count"
)

// JSON keys of restic snapshot listing entries.
const (
	keySnapshotTime     = "time"
	keySnapshotHostname = "hostname"
	keySnapshotPaths    = "paths"
	keySnapshotTags     = "tags"
	keySnapshotShortID  = "short_id"
)

// JSON keys of restic "status" messages.
const (
	keyStatusTotalFiles       = "total_files"
	keyStatusTotalBytes       = "total_bytes"
	keyStatusPercentDone      = "percent_done"
	keyStatusFilesDone        = "files_done"
	keyStatusBytesDone        = "bytes_done"
	keyStatusSecondsElapsed   = "seconds_elapsed"
	keyStatusSecondsRemaining = "seconds_remaining"
)

// JSON keys of restic "summary" messages.
const (
	keySummaryFilesNew            = "files_new"
	keySummaryFilesChanged        = "files_changed"
	keySummaryFilesUnmodified     = "files_unmodified"
	keySummaryDirsNew             = "dirs_new"
	keySummaryDirsChanged         = "dirs_changed"
	keySummaryDirsUnmodified      = "dirs_unmodified"
	keySummaryDataBlobs           = "data_blobs"
	keySummaryTreeBlobs           = "tree_blobs"
	keySummaryDataAdded           = "data_added"
	keySummaryTotalFilesProcessed = "total_files_processed"
	keySummaryTotalBytesProcessed = "total_bytes_processed"
	keySummaryTotalDuration       = "total_duration"
	keySummarySnapshotID          = "snapshot_id"
)

// missingKeyError marks a required key absent from the input, as opposed
// to present with a bad value.
type missingKeyError struct {
	key string
}

func (e *missingKeyError) Error() string {
	return fmt.Sprintf("missing key: %s", e.key)
}

// intField reads a required non-negative integer field.
func intField(data map[string]any, key string) (int64, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return 0, &missingKeyError{key: key}
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if err := validatePositive(float64(n)); err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// optIntField reads an optional non-negative integer field; absent or
// null values stay absent.
func optIntField(data map[string]any, key string) (*int64, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return nil, nil
	}
	n, err := toInt(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if err := validatePositive(float64(n)); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &n, nil
}

// floatField reads a required float field checked by validate.
func floatField(data map[string]any, key string, validate func(float64) error) (float64, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return 0, &missingKeyError{key: key}
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if err := validate(f); err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

// optFloatField reads an optional float field checked by validate.
func optFloatField(data map[string]any, key string, validate func(float64) error) (*float64, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if err := validate(f); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &f, nil
}

// stringField reads a required non-empty string field.
func stringField(data map[string]any, key string) (string, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return "", &missingKeyError{key: key}
	}
	s, err := toString(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	if err := validateNonEmpty(s); err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return s, nil
}

// stringsField reads a required list-of-strings field.
func stringsField(data map[string]any, key string) ([]string, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return nil, &missingKeyError{key: key}
	}
	l, err := toStrings(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return l, nil
}

// optStringsField reads an optional list-of-strings field.
func optStringsField(data map[string]any, key string) ([]string, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return nil, nil
	}
	l, err := toStrings(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return l, nil
}

// logSkip logs why a record is being discarded, distinguishing a missing
// required key from a present-but-invalid value.
func logSkip(log zerolog.Logger, record string, err error) {
	var missing *missingKeyError
	if errors.As(err, &missing) {
		log.Warn().Str("key", missing.key).Msg("skipping " + record + " with missing key")
		return
	}
	log.Warn().Err(err).Msg("skipping " + record + " with invalid value")
}

// DecodeStats converts "restic stats" output into a Stats record. Empty
// input means no data and yields nil silently; validation failures are
// logged and yield nil.
func DecodeStats(log zerolog.Logger, data map[string]any) *models.Stats {
	if len(data) == 0 {
		return nil
	}

	totalSize, err := intField(data, keyStatsTotalSize)
	if err != nil {
		logSkip(log, "restic stats", err)
		return nil
	}
	totalFileCount, err := intField(data, keyStatsTotalFileCount)
	if err != nil {
		logSkip(log, "restic stats", err)
		return nil
	}
	totalBlobCount, err := optIntField(data, keyStatsTotalBlobCount)
	if err != nil {
		logSkip(log, "restic stats", err)
		return nil
	}

	return &models.Stats{
		TotalSize:      totalSize,
		TotalFileCount: totalFileCount,
		TotalBlobCount: totalBlobCount,
	}
}

// DecodeSnapshot converts one snapshot listing entry into a Snapshot
// record. The stats bundle stays nil until the caller enriches it.
func DecodeSnapshot(log zerolog.Logger, data map[string]any) *models.Snapshot {
	if len(data) == 0 {
		return nil
	}

	rawTime, err := stringField(data, keySnapshotTime)
	if err != nil {
		logSkip(log, "snapshot", err)
		return nil
	}
	snapshotTime, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		log.Warn().Str("time", rawTime).Msg("skipping unparseable snapshot time")
		return nil
	}

	hostname, err := stringField(data, keySnapshotHostname)
	if err != nil {
		logSkip(log, "snapshot", err)
		return nil
	}
	paths, err := stringsField(data, keySnapshotPaths)
	if err != nil {
		logSkip(log, "snapshot", err)
		return nil
	}
	tags, err := optStringsField(data, keySnapshotTags)
	if err != nil {
		logSkip(log, "snapshot", err)
		return nil
	}
	shortID, err := stringField(data, keySnapshotShortID)
	if err != nil {
		logSkip(log, "snapshot", err)
		return nil
	}

	return &models.Snapshot{
		Key: &models.SnapshotKey{
			Hostname:   hostname,
			Paths:      paths,
			Tags:       tags,
			SnapshotID: shortID,
		},
		Time: snapshotTime,
	}
}

// DecodeBackupStatus converts a streamed "status" message into a
// BackupStatus record owned by key.
func DecodeBackupStatus(log zerolog.Logger, data map[string]any, key *models.SnapshotKey) *models.BackupStatus {
	if len(data) == 0 {
		return nil
	}

	var firstErr error
	reqInt := func(k string) int64 {
		n, err := intField(data, k)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return n
	}
	optInt := func(k string) *int64 {
		n, err := optIntField(data, k)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return n
	}

	percentDone, err := optFloatField(data, keyStatusPercentDone, validatePercent)
	if err != nil && firstErr == nil {
		firstErr = err
	}

	status := &models.BackupStatus{
		Key:              key,
		FilesTotal:       reqInt(keyStatusTotalFiles),
		BytesTotal:       reqInt(keyStatusTotalBytes),
		PercentDone:      percentDone,
		FilesDone:        optInt(keyStatusFilesDone),
		BytesDone:        optInt(keyStatusBytesDone),
		SecondsElapsed:   optInt(keyStatusSecondsElapsed),
		SecondsRemaining: optInt(keyStatusSecondsRemaining),
	}
	if firstErr != nil {
		logSkip(log, "backup status", firstErr)
		return nil
	}
	return status
}

// DecodeBackupSummary converts a streamed "summary" message into a
// BackupSummary record owned by key. On success the summary's snapshot id
// is written into key, completing it for the rest of the session; a
// failed decode leaves key untouched.
func DecodeBackupSummary(log zerolog.Logger, data map[string]any, key *models.SnapshotKey) *models.BackupSummary {
	if len(data) == 0 {
		return nil
	}

	var firstErr error
	reqInt := func(k string) int64 {
		n, err := intField(data, k)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return n
	}
	optInt := func(k string) *int64 {
		n, err := optIntField(data, k)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return n
	}

	snapshotID, err := stringField(data, keySummarySnapshotID)
	if err != nil && firstErr == nil {
		firstErr = err
	}

	summary := &models.BackupSummary{
		Key:             key,
		FilesNew:        reqInt(keySummaryFilesNew),
		FilesChanged:    reqInt(keySummaryFilesChanged),
		FilesUnmodified: reqInt(keySummaryFilesUnmodified),
		DirsNew:         reqInt(keySummaryDirsNew),
		DirsChanged:     reqInt(keySummaryDirsChanged),
		DirsUnmodified:  reqInt(keySummaryDirsUnmodified),
		DataBlobs:       optInt(keySummaryDataBlobs),
		TreeBlobs:       optInt(keySummaryTreeBlobs),
		DataAdded:       reqInt(keySummaryDataAdded),
		FilesProcessed:  reqInt(keySummaryTotalFilesProcessed),
		BytesProcessed:  reqInt(keySummaryTotalBytesProcessed),
	}

	duration, err := floatField(data, keySummaryTotalDuration, validatePositive)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	summary.Duration = duration

	if firstErr != nil {
		logSkip(log, "backup summary", firstErr)
		return nil
	}

	key.SnapshotID = snapshotID
	return summary
}
