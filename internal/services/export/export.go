// Package export provides the sinks that receive generated record
// batches.
package export

import (
	"context"
	"fmt"

	"github.com/dermotduffy/restic-exporter/internal/models"
	"github.com/dermotduffy/restic-exporter/internal/storage"
	"github.com/rs/zerolog"
)

// Exporter is a sink for generated record batches. Start is called once
// before the first Export.
type Exporter interface {
	Start(ctx context.Context) error
	Export(ctx context.Context, records []models.Record) error
}

// FromConfig builds every sink the configuration enables.
func FromConfig(logger zerolog.Logger, cfg *models.Config) ([]Exporter, error) {
	var exporters []Exporter

	if cfg.InfluxDB != nil {
		exporters = append(exporters, NewInfluxDB(logger, cfg.InfluxDB))
	}
	if cfg.Archive != nil {
		store, err := storage.New(cfg.Archive)
		if err != nil {
			return nil, err
		}
		archive, err := NewArchive(logger, cfg.Archive, store)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, archive)
	}
	if cfg.Telegram != nil {
		exporters = append(exporters, NewTelegram(logger, cfg.Telegram))
	}

	if len(exporters) == 0 {
		return nil, fmt.Errorf("no sink configured")
	}
	return exporters, nil
}
