// Package models defines the domain types for Quire.
package models

import "time"

// Document is a point-in-time snapshot of a tracked document.
// Content is the in-memory buffer, decoded to UTF-8 with LF line endings;
// Encoding and LineEnding record the on-disk representation so a save can
// round-trip the file exactly as it was opened.
type Document struct {
	Path               string    `json:"path"`
	Content            string    `json:"content"`
	Dirty              bool      `json:"dirty"`
	Encoding           string    `json:"encoding"`
	LineEnding         string    `json:"line_ending"`
	Checksum           string    `json:"checksum"`
	SavedAt            time.Time `json:"saved_at"`
	Orphaned           bool      `json:"orphaned"`
	ExternallyModified bool      `json:"externally_modified"`
}

// DocumentMetadata is a lightweight representation returned by list operations.
type DocumentMetadata struct {
	Path               string    `json:"path"`
	Dirty              bool      `json:"dirty"`
	Checksum           string    `json:"checksum"`
	SavedAt            time.Time `json:"saved_at"`
	Orphaned           bool      `json:"orphaned"`
	ExternallyModified bool      `json:"externally_modified"`
}

// FileMetadata describes a file on disk inside the workspace.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BackupRecord identifies one rolling backup snapshot of a document.
// BackupPath is workspace-relative, pointing into the document's
// .backups directory.
type BackupRecord struct {
	Path       string    `json:"path"`
	BackupPath string    `json:"backup_path"`
	Checksum   string    `json:"checksum"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}

// Change kinds reported by the filesystem watcher.
const (
	ChangeModified = "modified"
	ChangeDeleted  = "deleted"
	ChangeRenamed  = "renamed"
)

// ChangeEvent is a transient external-change notification. It is consumed
// immediately to reconcile a document's on-disk-vs-memory state and is
// never persisted.
type ChangeEvent struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}
