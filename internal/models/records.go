package models

import "time"

// Record is implemented by every statistics record the pipeline can emit.
// The set of implementations is closed; sinks switch over the concrete
// types and log-and-skip kinds they do not handle.
type Record interface {
	isRecord()
}

// SnapshotKey identifies a logical backup target: the host/paths/tags
// tuple restic groups snapshots by. SnapshotID starts empty in streaming
// mode and is filled in once the completion summary reveals it.
type SnapshotKey struct {
	Hostname   string   `json:"hostname"`
	Paths      []string `json:"paths"`
	Tags       []string `json:"tags,omitempty"`
	SnapshotID string   `json:"snapshot_id,omitempty"`
}

// Stats holds the counters of a single "restic stats" call.
type Stats struct {
	TotalSize      int64  `json:"total_size"`
	TotalFileCount int64  `json:"total_file_count"`
	TotalBlobCount *int64 `json:"total_blob_count,omitempty"` // nil when restic reports none for the mode
}

func (*Stats) isRecord() {}

// StatsBundle pairs the two stats modes for one scope. Either side is nil
// when restic returned nothing for that mode.
type StatsBundle struct {
	Raw     *Stats `json:"raw,omitempty"`
	Restore *Stats `json:"restore,omitempty"`
}

// Snapshot is one entry of a snapshot listing. Stats stays nil until the
// snapshot is enriched with per-id stats calls.
type Snapshot struct {
	Key   *SnapshotKey `json:"key"`
	Time  time.Time    `json:"time"`
	Stats *StatsBundle `json:"stats,omitempty"`
}

func (*Snapshot) isRecord() {}

// BackupStatus is in-progress backup telemetry, either decoded from a
// restic "status" message or synthesized as the terminal marker of a
// completed run.
type BackupStatus struct {
	Key              *SnapshotKey `json:"key"`
	FilesTotal       int64        `json:"total_files"`
	BytesTotal       int64        `json:"total_bytes"`
	PercentDone      *float64     `json:"percent_done,omitempty"`
	FilesDone        *int64       `json:"files_done,omitempty"`
	BytesDone        *int64       `json:"bytes_done,omitempty"`
	SecondsElapsed   *int64       `json:"seconds_elapsed,omitempty"`
	SecondsRemaining *int64       `json:"seconds_remaining,omitempty"`
}

func (*BackupStatus) isRecord() {}

// BackupSummary is the completion telemetry of one backup run, decoded
// from a restic "summary" message.
type BackupSummary struct {
	Key             *SnapshotKey `json:"key"`
	FilesNew        int64        `json:"files_new"`
	FilesChanged    int64        `json:"files_changed"`
	FilesUnmodified int64        `json:"files_unmodified"`
	DirsNew         int64        `json:"dirs_new"`
	DirsChanged     int64        `json:"dirs_changed"`
	DirsUnmodified  int64        `json:"dirs_unmodified"`
	DataBlobs       *int64       `json:"data_blobs,omitempty"` // older restic versions omit blob counts
	TreeBlobs       *int64       `json:"tree_blobs,omitempty"`
	DataAdded       int64        `json:"data_added"`
	FilesProcessed  int64        `json:"total_files_processed"`
	BytesProcessed  int64        `json:"total_bytes_processed"`
	Duration        float64      `json:"total_duration"`
}

func (*BackupSummary) isRecord() {}

// RepoStats is the repository-wide aggregate, not tied to any snapshot.
type RepoStats struct {
	Stats StatsBundle `json:"stats"`
}

func (*RepoStats) isRecord() {}
