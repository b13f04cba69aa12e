package export

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dermotduffy/restic-exporter/internal/models"
	"github.com/dermotduffy/restic-exporter/internal/storage"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/sio"
	"github.com/rs/zerolog"
)

// Compression kinds the archive sink supports.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// archiveEnvelope wraps one record with its kind discriminator and the
// batch export time.
type archiveEnvelope struct {
	Kind       string        `json:"kind"`
	ExportedAt time.Time     `json:"exported_at"`
	Record     models.Record `json:"record"`
}

// Archive exports each batch as one JSONL object in an object store,
// optionally compressed and encrypted at rest.
type Archive struct {
	logger zerolog.Logger
	cfg    *models.ArchiveConfig
	store  storage.ObjectStore
	key    []byte // nil disables encryption
	now    func() time.Time
}

// NewArchive creates the archive sink.
func NewArchive(logger zerolog.Logger, cfg *models.ArchiveConfig, store storage.ObjectStore) (*Archive, error) {
	return NewArchiveWithClock(logger, cfg, store, time.Now)
}

// NewArchiveWithClock creates the archive sink with a custom time source
// (for testing).
func NewArchiveWithClock(logger zerolog.Logger, cfg *models.ArchiveConfig, store storage.ObjectStore, now func() time.Time) (*Archive, error) {
	switch cfg.Compression {
	case "", CompressionNone, CompressionGzip, CompressionZstd:
	default:
		return nil, fmt.Errorf("unsupported compression: %s", cfg.Compression)
	}

	key, err := encryptionKey(cfg.EncryptionKeyEnv)
	if err != nil {
		return nil, err
	}

	return &Archive{
		logger: logger,
		cfg:    cfg,
		store:  store,
		key:    key,
		now:    now,
	}, nil
}

// encryptionKey reads a 32-byte hex key from the named environment
// variable. An empty variable name disables encryption.
func encryptionKey(envVar string) ([]byte, error) {
	if envVar == "" {
		return nil, nil
	}
	raw := strings.TrimSpace(os.Getenv(envVar))
	if raw == "" {
		return nil, fmt.Errorf("environment variable %s holds no encryption key", envVar)
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key length: %d (expected 32 bytes)", len(key))
	}
	return key, nil
}

// Start is a no-op; the object store needs no connection setup.
func (s *Archive) Start(_ context.Context) error {
	return nil
}

// Export writes the batch as one JSONL object. Records of unhandled
// kinds are logged and skipped; an all-skipped or empty batch writes no
// object.
func (s *Archive) Export(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	now := s.now().UTC()

	var buf bytes.Buffer
	var sink io.Writer = &buf

	var encWriter io.WriteCloser
	if s.key != nil {
		w, err := sio.EncryptWriter(sink, sio.Config{Key: s.key})
		if err != nil {
			return fmt.Errorf("create encryption writer: %w", err)
		}
		encWriter = w
		sink = w
	}

	compWriter, err := compressionWriter(s.cfg.Compression, sink)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(compWriter)
	count := 0
	for _, record := range records {
		kind := recordKind(record)
		if kind == "" {
			s.logger.Warn().Type("record", record).Msg("skipping record of unhandled type")
			continue
		}
		envelope := archiveEnvelope{Kind: kind, ExportedAt: now, Record: record}
		if err := encoder.Encode(&envelope); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		count++
	}

	if err := compWriter.Close(); err != nil {
		return fmt.Errorf("close compression writer: %w", err)
	}
	if encWriter != nil {
		if err := encWriter.Close(); err != nil {
			return fmt.Errorf("close encryption writer: %w", err)
		}
	}

	if count == 0 {
		return nil
	}

	key := s.objectKey(now)
	s.logger.Debug().Str("key", key).Int("records", count).Msg("writing archive object")
	return s.store.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
}

func (s *Archive) objectKey(now time.Time) string {
	name := now.Format("20060102T150405.000000000Z") + ".jsonl"
	switch s.cfg.Compression {
	case CompressionGzip:
		name += ".gz"
	case CompressionZstd:
		name += ".zst"
	}
	if s.key != nil {
		name += ".enc"
	}
	return path.Join(s.cfg.Prefix, now.Format("2006/01"), name)
}

func recordKind(record models.Record) string {
	switch record.(type) {
	case *models.Snapshot:
		return "snapshot"
	case *models.BackupStatus:
		return "backup_status"
	case *models.BackupSummary:
		return "backup_summary"
	case *models.RepoStats:
		return "repo_stats"
	case *models.Stats:
		return "stats"
	default:
		return ""
	}
}

func compressionWriter(kind string, w io.Writer) (io.WriteCloser, error) {
	switch kind {
	case "", CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported compression: %s", kind)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
