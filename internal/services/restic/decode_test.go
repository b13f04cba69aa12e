package restic

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/dermotduffy/restic-exporter/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// captureLogger returns a logger writing JSON lines into the buffer so
// tests can assert on emitted diagnostics.
func captureLogger() (*bytes.Buffer, zerolog.Logger) {
	buf := &bytes.Buffer{}
	return buf, zerolog.New(buf)
}

func intPtr(v int64) *int64 { return &v }

func floatPtr(v float64) *float64 { return &v }

func statsData() map[string]any {
	return map[string]any{
		"total_size":       1709,
		"total_file_count": 1,
		"total_blob_count": 4,
	}
}

func snapshotData() map[string]any {
	return map[string]any{
		"time":     "2020-12-28T21:28:23.403981118-08:00",
		"parent":   "parent_here",
		"tree":     "tree_here",
		"paths":    []any{"/path/whatever"},
		"hostname": "hostname",
		"username": "username",
		"uid":      1000,
		"gid":      1000,
		"id":       "1234abcd",
		"short_id": "ab1234",
	}
}

func statusData() map[string]any {
	return map[string]any{
		"message_type": "status",
		"percent_done": 0.25,
		"total_files":  9586,
		"files_done":   2321,
		"total_bytes":  147893659,
		"bytes_done":   36953149,
	}
}

func summaryData() map[string]any {
	return map[string]any{
		"message_type":          "summary",
		"files_new":             1265,
		"files_changed":         41,
		"files_unmodified":      77637,
		"dirs_new":              217,
		"dirs_changed":          44,
		"dirs_unmodified":       17511,
		"data_blobs":            849,
		"tree_blobs":            262,
		"data_added":            14909514,
		"total_files_processed": 78943,
		"total_bytes_processed": 1667325955,
		"total_duration":        4.035790225,
		"snapshot_id":           "a34dda71",
	}
}

func without(data map[string]any, key string) map[string]any {
	out := map[string]any{}
	for k, v := range data {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func override(data map[string]any, key string, value any) map[string]any {
	out := map[string]any{}
	for k, v := range data {
		out[k] = v
	}
	out[key] = value
	return out
}

func TestDecodeStats(t *testing.T) {
	want := &models.Stats{
		TotalSize:      1709,
		TotalFileCount: 1,
		TotalBlobCount: intPtr(4),
	}

	assert.Equal(t, want, DecodeStats(testLogger(), statsData()))
}

func TestDecodeStats_FloatInput(t *testing.T) {
	data := map[string]any{
		"total_size":       1709.0,
		"total_file_count": 1.0,
		"total_blob_count": 4.0,
	}

	want := &models.Stats{
		TotalSize:      1709,
		TotalFileCount: 1,
		TotalBlobCount: intPtr(4),
	}

	assert.Equal(t, want, DecodeStats(testLogger(), data))
}

func TestDecodeStats_AbsentBlobCount(t *testing.T) {
	stats := DecodeStats(testLogger(), override(statsData(), "total_blob_count", nil))

	require.NotNil(t, stats)
	assert.Nil(t, stats.TotalBlobCount)

	stats = DecodeStats(testLogger(), without(statsData(), "total_blob_count"))

	require.NotNil(t, stats)
	assert.Nil(t, stats.TotalBlobCount)
}

func TestDecodeStats_NegativeValue(t *testing.T) {
	buf, logger := captureLogger()

	assert.Nil(t, DecodeStats(logger, override(statsData(), "total_size", -1)))
	assert.Contains(t, buf.String(), "expected positive number")
}

func TestDecodeStats_MissingKey(t *testing.T) {
	buf, logger := captureLogger()

	assert.Nil(t, DecodeStats(logger, map[string]any{"foo": "bar"}))
	assert.Contains(t, buf.String(), "skipping restic stats with missing key")
}

func TestDecodeStats_InvalidValue(t *testing.T) {
	buf, logger := captureLogger()

	assert.Nil(t, DecodeStats(logger, override(statsData(), "total_size", "str")))
	assert.Contains(t, buf.String(), "skipping restic stats with invalid value")
}

func TestDecodeStats_EmptyInput(t *testing.T) {
	buf, logger := captureLogger()

	assert.Nil(t, DecodeStats(logger, nil))
	assert.Nil(t, DecodeStats(logger, map[string]any{}))
	assert.Empty(t, buf.String(), "empty input is not an error")
}

func TestDecodeSnapshot(t *testing.T) {
	snapshot := DecodeSnapshot(testLogger(), snapshotData())

	require.NotNil(t, snapshot)
	assert.Equal(t, &models.SnapshotKey{
		Hostname:   "hostname",
		Paths:      []string{"/path/whatever"},
		Tags:       nil,
		SnapshotID: "ab1234",
	}, snapshot.Key)
	assert.Nil(t, snapshot.Stats)

	wantTime := time.Date(2020, 12, 28, 21, 28, 23, 403981118, time.FixedZone("", -8*60*60))
	assert.True(t, snapshot.Time.Equal(wantTime), "got %v, want %v", snapshot.Time, wantTime)
}

func TestDecodeSnapshot_MissingKey(t *testing.T) {
	buf, logger := captureLogger()

	assert.Nil(t, DecodeSnapshot(logger, without(snapshotData(), "time")))
	assert.Contains(t, buf.String(), "skipping snapshot with missing key")
}

func TestDecodeSnapshot_UnparseableTime(t *testing.T) {
	buf, logger := captureLogger()

	assert.Nil(t, DecodeSnapshot(logger, override(snapshotData(), "time", "garbage")))
	assert.Contains(t, buf.String(), "skipping unparseable snapshot time")
}

func TestDecodeSnapshot_EmptyHostname(t *testing.T) {
	buf, logger := captureLogger()

	assert.Nil(t, DecodeSnapshot(logger, override(snapshotData(), "hostname", "")))
	assert.Contains(t, buf.String(), "skipping snapshot with invalid value")
}

func TestDecodeSnapshot_EmptyInput(t *testing.T) {
	assert.Nil(t, DecodeSnapshot(testLogger(), nil))
}

func TestDecodeBackupStatus(t *testing.T) {
	key := &models.SnapshotKey{Hostname: "hostname", Paths: []string{"path1"}}

	want := &models.BackupStatus{
		Key:         key,
		FilesTotal:  9586,
		BytesTotal:  147893659,
		PercentDone: floatPtr(0.25),
		FilesDone:   intPtr(2321),
		BytesDone:   intPtr(36953149),
	}

	status := DecodeBackupStatus(testLogger(), statusData(), key)

	require.NotNil(t, status)
	assert.Equal(t, want, status)
	assert.Nil(t, status.SecondsElapsed)
	assert.Nil(t, status.SecondsRemaining)
}

func TestDecodeBackupStatus_InvalidPercent(t *testing.T) {
	key := &models.SnapshotKey{Hostname: "hostname", Paths: []string{"path1"}}
	buf, logger := captureLogger()

	assert.Nil(t, DecodeBackupStatus(logger, override(statusData(), "percent_done", 2.0), key))
	assert.Contains(t, buf.String(), "not a valid percent")
}

func TestDecodeBackupStatus_MissingKey(t *testing.T) {
	key := &models.SnapshotKey{Hostname: "hostname", Paths: []string{"path1"}}
	buf, logger := captureLogger()

	assert.Nil(t, DecodeBackupStatus(logger, without(statusData(), "total_files"), key))
	assert.Contains(t, buf.String(), "skipping backup status with missing key")
}

func TestDecodeBackupStatus_InvalidValue(t *testing.T) {
	key := &models.SnapshotKey{Hostname: "hostname", Paths: []string{"path1"}}
	buf, logger := captureLogger()

	assert.Nil(t, DecodeBackupStatus(logger, override(statusData(), "total_files", "garbage"), key))
	assert.Contains(t, buf.String(), "skipping backup status with invalid value")
}

func TestDecodeBackupStatus_EmptyInput(t *testing.T) {
	key := &models.SnapshotKey{Hostname: "hostname", Paths: []string{"path1"}}

	assert.Nil(t, DecodeBackupStatus(testLogger(), nil, key))
}

func TestDecodeBackupSummary(t *testing.T) {
	key := &models.SnapshotKey{Hostname: "hostname", Paths: []string{"path1"}}

	summary := DecodeBackupSummary(testLogger(), summaryData(), key)

	require.NotNil(t, summary)
	assert.Equal(t, &models.BackupSummary{
		Key:             key,
		FilesNew:        1265,
		FilesChanged:    41,
		FilesUnmodified: 77637,
		DirsNew:         217,
		DirsChanged:     44,
		DirsUnmodified:  17511,
		DataBlobs:       intPtr(849),
		TreeBlobs:       intPtr(262),
		DataAdded:       14909514,
		FilesProcessed:  78943,
		BytesProcessed:  1667325955,
		Duration:        4.035790225,
	}, summary)

	// The summary completes the key in place.
	assert.Equal(t, "a34dda71", key.SnapshotID)
}

func TestDecodeBackupSummary_AbsentBlobCounts(t *testing.T) {
	key := &models.SnapshotKey{Hostname: "hostname", Paths: []string{"path1"}}
	data := without(without(summaryData(), "data_blobs"), "tree_blobs")

	summary := DecodeBackupSummary(testLogger(), data, key)

	require.NotNil(t, summary)
	assert.Nil(t, summary.DataBlobs)
	assert.Nil(t, summary.TreeBlobs)
}

func TestDecodeBackupSummary_MissingKeyLeavesSnapshotKeyUntouched(t *testing.T) {
	key := &models.SnapshotKey{Hostname: "hostname", Paths: []string{"path1"}}
	buf, logger := captureLogger()

	assert.Nil(t, DecodeBackupSummary(logger, without(summaryData(), "files_new"), key))
	assert.Contains(t, buf.String(), "skipping backup summary with missing key")
	assert.Empty(t, key.SnapshotID)
}

func TestDecodeBackupSummary_InvalidValue(t *testing.T) {
	key := &models.SnapshotKey{Hostname: "hostname", Paths: []string{"path1"}}
	buf, logger := captureLogger()

	assert.Nil(t, DecodeBackupSummary(logger, override(summaryData(), "files_new", "garbage"), key))
	assert.Contains(t, buf.String(), "skipping backup summary with invalid value")
}

func TestDecodeBackupSummary_EmptyInput(t *testing.T) {
	key := &models.SnapshotKey{Hostname: "hostname", Paths: []string{"path1"}}

	assert.Nil(t, DecodeBackupSummary(testLogger(), nil, key))
}
