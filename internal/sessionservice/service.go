// Package sessionservice coordinates the session manager, the backup store,
// and the save-history catalog behind one API used by the HTTP and MCP
// surfaces.
package sessionservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/ostberg/quire/internal/apperr"
	"github.com/ostberg/quire/internal/backup"
	"github.com/ostberg/quire/internal/history"
	"github.com/ostberg/quire/internal/models"
	"github.com/ostberg/quire/internal/session"
	"github.com/ostberg/quire/internal/storage"
)

// Service coordinates session, storage, backup, and history operations.
type Service struct {
	mgr   *session.Manager
	store storage.Provider
	snaps *backup.Store
	db    history.Catalog
}

// NewService creates a new session service.
func NewService(mgr *session.Manager, store storage.Provider, snaps *backup.Store, db history.Catalog) *Service {
	return &Service{mgr: mgr, store: store, snaps: snaps, db: db}
}

// OpenDocument loads a file into the session, or returns the already-open
// document.
func (s *Service) OpenDocument(_ context.Context, path string) (models.Document, error) {
	return s.mgr.Open(path)
}

// CreateDocument starts tracking a new unsaved document. The file appears on
// disk at the first save.
func (s *Service) CreateDocument(_ context.Context, path, content string) (models.Document, error) {
	return s.mgr.Create(path, content)
}

// GetDocument returns the tracked document at path.
func (s *Service) GetDocument(_ context.Context, path string) (models.Document, error) {
	return s.mgr.Get(path)
}

// UpdateBuffer replaces the in-memory content of an open document and marks
// it dirty. Nothing is written to disk.
func (s *Service) UpdateBuffer(_ context.Context, path, content string) (models.Document, error) {
	return s.mgr.UpdateBuffer(path, content)
}

// MarkDirty flags an open document as having unsaved changes.
func (s *Service) MarkDirty(_ context.Context, path string) error {
	return s.mgr.MarkDirty(path)
}

// SaveDocument flushes an open document's buffer to disk.
func (s *Service) SaveDocument(_ context.Context, path string) (models.Document, error) {
	return s.mgr.Save(path)
}

// CloseDocument stops tracking a document. Unsaved changes are refused unless
// discard is set.
func (s *Service) CloseDocument(_ context.Context, path string, discard bool) error {
	return s.mgr.Close(path, discard)
}

// ListDocuments returns metadata for every open document.
func (s *Service) ListDocuments(_ context.Context) ([]models.DocumentMetadata, error) {
	docs, err := s.mgr.List()
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.DocumentMetadata{}
	}
	return docs, nil
}

// ListFiles returns metadata for every file in the workspace, tracked or not.
func (s *Service) ListFiles(_ context.Context) ([]models.FileMetadata, error) {
	files, err := s.store.List("")
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []models.FileMetadata{}
	}
	return files, nil
}

// ListBackups returns all backup records for a document, oldest first.
func (s *Service) ListBackups(_ context.Context, path string) ([]models.BackupRecord, error) {
	recs, err := s.db.BackupsFor(path)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []models.BackupRecord{}
	}
	return recs, nil
}

// ReadBackup returns the raw content of one backup snapshot.
func (s *Service) ReadBackup(_ context.Context, path, backupPath string) ([]byte, error) {
	rec, err := s.findBackup(path, backupPath)
	if err != nil {
		return nil, err
	}
	return s.snaps.Read(rec)
}

// RestoreBackup loads a snapshot's content into the document buffer. The
// document becomes dirty; disk is untouched until the next save. If the path
// is not open it is opened first, or recreated as a new document when its
// file no longer exists.
func (s *Service) RestoreBackup(_ context.Context, path, backupPath string) (models.Document, error) {
	rec, err := s.findBackup(path, backupPath)
	if err != nil {
		return models.Document{}, err
	}
	content, err := s.snaps.Read(rec)
	if err != nil {
		return models.Document{}, err
	}

	if !s.mgr.Tracked(path) {
		if _, err := s.mgr.Open(path); err != nil {
			if !errors.Is(err, apperr.ErrRead) {
				return models.Document{}, err
			}
			// File is gone; restore into a fresh unsaved document.
			return s.mgr.Create(path, string(content))
		}
	}
	return s.mgr.UpdateBuffer(path, string(content))
}

// PruneBackups applies the retention policy to a document's backups and
// returns the number removed.
func (s *Service) PruneBackups(_ context.Context, path string) (int, error) {
	return s.mgr.PruneBackups(path)
}

// SearchSaved runs a full-text search over last-saved document content.
func (s *Service) SearchSaved(_ context.Context, query string, limit int) ([]history.SearchResult, error) {
	results, err := s.db.SearchSaved(query, limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []history.SearchResult{}
	}
	return results, nil
}

// RemoveFile deletes a file from the workspace along with its backups and
// save history. An open document at that path is closed first; unsaved
// changes are refused unless discard is set.
func (s *Service) RemoveFile(_ context.Context, path string, discard bool) error {
	if s.mgr.Tracked(path) {
		if err := s.mgr.Close(path, discard); err != nil {
			return err
		}
	}
	recs, err := s.db.BackupsFor(path)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := s.snaps.Remove(rec); err != nil {
			return err
		}
	}
	if err := s.db.DeleteDocument(path); err != nil {
		return err
	}
	if err := s.store.Delete(path); err != nil {
		return err
	}
	return nil
}

// RenameFile moves a file within the workspace and re-keys the open document
// if there is one. Save history stays keyed by path, so the old path's
// history is dropped; it is rebuilt at the next save.
func (s *Service) RenameFile(_ context.Context, oldPath, newPath string) error {
	if s.mgr.Tracked(newPath) {
		return fmt.Errorf("sessionservice: rename to %s: %w", newPath, apperr.ErrAlreadyExists)
	}
	if err := s.store.Move(oldPath, newPath); err != nil {
		return err
	}
	if err := s.mgr.Rename(oldPath, newPath); err != nil {
		return err
	}
	return s.db.DeleteDocument(oldPath)
}

// AutoSaveTick saves every dirty, unconflicted document. Exposed for the
// periodic auto-save loop and the shutdown flush.
func (s *Service) AutoSaveTick(_ context.Context) (int, error) {
	return s.mgr.AutoSaveTick()
}

func (s *Service) findBackup(path, backupPath string) (models.BackupRecord, error) {
	recs, err := s.db.BackupsFor(path)
	if err != nil {
		return models.BackupRecord{}, err
	}
	for _, rec := range recs {
		if rec.BackupPath == backupPath {
			return rec, nil
		}
	}
	return models.BackupRecord{}, fmt.Errorf("sessionservice: backup %s for %s: %w", backupPath, path, apperr.ErrNotFound)
}
