package models

import "time"

// TransferKind tags a session as an upload or a download. Both directions
// share one descriptor schema; kind-specific fields are empty for the other.
type TransferKind string

const (
	TransferUpload   TransferKind = "upload"
	TransferDownload TransferKind = "download"
)

// TransferStatus is the lifecycle state of a transfer session.
type TransferStatus string

const (
	TransferActive    TransferStatus = "active"
	TransferPaused    TransferStatus = "paused"
	TransferCompleted TransferStatus = "completed"
	TransferCancelled TransferStatus = "cancelled"
)

// ConflictPolicy decides what happens when an upload target already exists.
type ConflictPolicy string

const (
	ConflictAbort     ConflictPolicy = "abort"
	ConflictOverwrite ConflictPolicy = "overwrite"
	ConflictKeepBoth  ConflictPolicy = "keep_both"
)

// TransferSession describes one in-progress file transfer. It is persisted
// as a {id}.meta descriptor beside the partial data so an interrupted
// process can rebuild its session table on restart.
type TransferSession struct {
	TransferID       string         `json:"transfer_id"`
	ClientID         string         `json:"client_id"`
	Kind             TransferKind   `json:"kind"`
	FileName         string         `json:"file_name"`
	FileSize         int64          `json:"file_size"`
	BytesTransferred int64          `json:"bytes_transferred"`
	Status           TransferStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`

	// Upload only.
	FinalPath      string         `json:"final_path,omitempty"`
	ConflictPolicy ConflictPolicy `json:"conflict_resolution,omitempty"`

	// Download only. SourceModTime is the snapshot taken at initiation,
	// used to detect the file changing underneath the session.
	SourcePath    string    `json:"source_path,omitempty"`
	SourceModTime time.Time `json:"source_mod_time,omitempty"`
}
