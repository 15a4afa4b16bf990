// Package backup stores point-in-time snapshots of document buffers in a
// .backups directory beside each file, named <file>.<timestamp>.bak.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ostberg/quire/internal/checksum"
	"github.com/ostberg/quire/internal/models"
	"github.com/ostberg/quire/internal/storage"
)

const (
	timestampLayout = "20060102_150405"
	suffix          = ".bak"
)

// Store writes and removes backup snapshots under a workspace root.
type Store struct {
	root string // absolute path to workspace directory
}

// NewStore creates a snapshot store rooted at the given directory.
// The directory must already exist.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("backup: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("backup: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("backup: root is not a directory: %s", abs)
	}
	return &Store{root: abs}, nil
}

// safePath resolves a workspace-relative path and rejects escapes.
func (s *Store) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if rel == "" || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("backup: invalid path: %q", rel)
	}
	abs, err := filepath.Abs(filepath.Join(s.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("backup: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("backup: path escapes workspace root: %s", rel)
	}
	return abs, nil
}

// Snapshot writes content to a fresh backup file for the document at rel and
// returns its record. The write is atomic (temp file, then rename) so a
// half-written snapshot is never observable.
func (s *Store) Snapshot(rel string, content []byte, now time.Time) (models.BackupRecord, error) {
	if _, err := s.safePath(rel); err != nil {
		return models.BackupRecord{}, err
	}

	backupRel := s.nextName(rel, now)
	abs, err := s.safePath(backupRel)
	if err != nil {
		return models.BackupRecord{}, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return models.BackupRecord{}, fmt.Errorf("backup: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".quire-tmp-*")
	if err != nil {
		return models.BackupRecord{}, fmt.Errorf("backup: create temp: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return models.BackupRecord{}, fmt.Errorf("backup: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return models.BackupRecord{}, fmt.Errorf("backup: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return models.BackupRecord{}, fmt.Errorf("backup: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return models.BackupRecord{}, fmt.Errorf("backup: rename: %w", err)
	}
	success = true

	return models.BackupRecord{
		Path:       rel,
		BackupPath: backupRel,
		Checksum:   checksum.Sum(content),
		Size:       int64(len(content)),
		CreatedAt:  now,
	}, nil
}

// Read returns the content of a backup snapshot.
func (s *Store) Read(rec models.BackupRecord) ([]byte, error) {
	abs, err := s.safePath(rec.BackupPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("backup: read %s: %w", rec.BackupPath, err)
	}
	return data, nil
}

// Remove deletes a backup snapshot file. A snapshot already gone is not an
// error; the catalog row is what matters to the caller.
func (s *Store) Remove(rec models.BackupRecord) error {
	abs, err := s.safePath(rec.BackupPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backup: remove %s: %w", rec.BackupPath, err)
	}
	return nil
}

// nextName builds a workspace-relative snapshot path that does not collide
// with an existing file (two snapshots within one second get -1, -2, ...).
func (s *Store) nextName(rel string, now time.Time) string {
	dir := filepath.Join(filepath.Dir(rel), storage.BackupDirName)
	base := filepath.Base(rel) + "." + now.Format(timestampLayout)

	candidate := filepath.Join(dir, base+suffix)
	for i := 1; ; i++ {
		abs, err := s.safePath(candidate)
		if err != nil {
			return candidate
		}
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, suffix))
	}
}
