package api

import (
	"time"

	"github.com/ostberg/quire/internal/models"
)

// OpenDocumentRequest is the request body for opening a file into the session.
type OpenDocumentRequest struct {
	Path string `json:"path" example:"src/main.go" validate:"required"`
}

// CreateDocumentRequest is the request body for creating a new document.
type CreateDocumentRequest struct {
	Path    string `json:"path" example:"notes/todo.txt" validate:"required"`
	Content string `json:"content" example:"first line"`
}

// UpdateBufferRequest is the request body for replacing a document buffer.
type UpdateBufferRequest struct {
	Content string `json:"content" example:"updated content" validate:"required"`
}

// MoveFileRequest is the request body for renaming a workspace file.
type MoveFileRequest struct {
	From string `json:"from" example:"old/name.txt" validate:"required"`
	To   string `json:"to" example:"new/name.txt" validate:"required"`
}

// RestoreBackupRequest names the snapshot to load back into the buffer.
type RestoreBackupRequest struct {
	BackupPath string `json:"backup_path" example:".backups/a.txt.20240601_120000.bak" validate:"required"`
}

// Document is the full document response type (aliased from the domain layer).
type Document = models.Document

// DocumentMetadata is a lightweight item in a list response (aliased from the
// domain layer).
type DocumentMetadata = models.DocumentMetadata

// DocumentListResponse wraps open-document listings.
type DocumentListResponse struct {
	Documents []DocumentMetadata `json:"documents" validate:"required"`
}

// FileListResponse wraps workspace file listings.
type FileListResponse struct {
	Files []models.FileMetadata `json:"files" validate:"required"`
}

// BackupListResponse wraps backup-record listings.
type BackupListResponse struct {
	Backups []models.BackupRecord `json:"backups" validate:"required"`
}

// PruneResponse reports how many snapshots a prune removed.
type PruneResponse struct {
	Pruned int `json:"pruned" example:"3" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"src/main.go" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// DocumentMetadataDTO mirrors DocumentMetadata for swag.
type DocumentMetadataDTO struct {
	Path               string    `json:"path" example:"src/main.go"`
	Dirty              bool      `json:"dirty" example:"true"`
	Checksum           string    `json:"checksum" example:"abc123..."`
	SavedAt            time.Time `json:"saved_at"`
	Orphaned           bool      `json:"orphaned"`
	ExternallyModified bool      `json:"externally_modified"`
}
