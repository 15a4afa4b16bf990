// Package storage defines the workspace file-system abstraction.
package storage

import "github.com/ostberg/quire/internal/models"

// Provider is the interface for workspace file operations.
type Provider interface {
	// List returns metadata for every regular file under dir (relative to the
	// workspace root), skipping hidden files and backup directories.
	List(dir string) ([]models.FileMetadata, error)
	// Stat returns metadata for the file at path (relative to the workspace root).
	Stat(path string) (models.FileMetadata, error)
	// Read returns the raw bytes of the file at path (relative to the workspace root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the workspace root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to the workspace root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to the workspace root).
	Move(oldPath, newPath string) error
}
