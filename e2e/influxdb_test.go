//go:build e2e

package e2e

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/dermotduffy/restic-exporter/internal/models"
	"github.com/dermotduffy/restic-exporter/internal/services/export"
	"github.com/stretchr/testify/require"
)

func getInfluxDBConfig(t *testing.T) *models.InfluxDBConfig {
	t.Helper()

	host := os.Getenv("TEST_INFLUXDB_HOST")
	if host == "" {
		t.Skip("TEST_INFLUXDB_HOST not set")
	}

	port := 8086
	if p := os.Getenv("TEST_INFLUXDB_PORT"); p != "" {
		parsed, err := strconv.Atoi(p)
		require.NoError(t, err)
		port = parsed
	}

	return &models.InfluxDBConfig{
		Host:     host,
		Port:     port,
		Username: os.Getenv("TEST_INFLUXDB_USERNAME"),
		Password: os.Getenv("TEST_INFLUXDB_PASSWORD"),
		Database: "restic_exporter_e2e",
	}
}

func TestInfluxDBStartAndExport_E2E(t *testing.T) {
	cfg := getInfluxDBConfig(t)

	sink := export.NewInfluxDB(testLogger(), cfg)
	ctx := context.Background()

	// Start creates the database, so a fresh server works out of the box.
	require.NoError(t, sink.Start(ctx))

	blobs := int64(4)
	percent := 1.0
	records := []models.Record{
		&models.Snapshot{
			Key: &models.SnapshotKey{
				Hostname:   "e2e-test-host",
				Paths:      []string{"/data"},
				SnapshotID: "abc123def456",
			},
			Time: time.Now().Add(-time.Hour),
			Stats: &models.StatsBundle{
				Raw:     &models.Stats{TotalSize: 1709, TotalFileCount: 1, TotalBlobCount: &blobs},
				Restore: &models.Stats{TotalSize: 1710, TotalFileCount: 1},
			},
		},
		&models.BackupStatus{
			Key:         &models.SnapshotKey{Hostname: "e2e-test-host", Paths: []string{"/data"}},
			FilesTotal:  5150,
			BytesTotal:  1024 * 1024 * 1024 * 2,
			PercentDone: &percent,
		},
		&models.RepoStats{
			Stats: models.StatsBundle{Raw: &models.Stats{TotalSize: 1709, TotalFileCount: 1}},
		},
	}

	require.NoError(t, sink.Export(ctx, records))

	// A second batch reuses the client created by Start.
	require.NoError(t, sink.Export(ctx, records))
}
