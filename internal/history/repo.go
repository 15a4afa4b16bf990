package history

import (
	"fmt"
	"time"

	"github.com/ostberg/quire/internal/models"
)

// DocumentRow represents a row in the documents table: the last-saved state
// of a tracked document.
type DocumentRow struct {
	Path       string
	Checksum   string
	Encoding   string
	LineEnding string
	SavedAt    time.Time
}

// SearchResult represents one search hit over last-saved content.
type SearchResult struct {
	Path    string
	Snippet string
}

// RecordSave inserts or replaces the last-saved state of a document, along
// with its FTS entry, within a transaction.
func (db *DB) RecordSave(row DocumentRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO documents (path, checksum, encoding, line_ending, body, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum    = excluded.checksum,
			encoding    = excluded.encoding,
			line_ending = excluded.line_ending,
			body        = excluded.body,
			saved_at    = excluded.saved_at
	`, row.Path, row.Checksum, row.Encoding, row.LineEnding, body, row.SavedAt)
	if err != nil {
		return fmt.Errorf("history: record save: %w", err)
	}

	// FTS upsert (no-op when the FTS5 tag is absent).
	if err := ftsUpsert(tx, row.Path, body); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteDocument removes a document's save history, its FTS entry, and its
// backup records. The backup files themselves are the caller's concern.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM backups WHERE path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the last-saved checksum for a document, or empty
// string if the path has never been saved.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// ListDocuments returns the last-saved state of every document in the catalog.
func (db *DB) ListDocuments() ([]DocumentRow, error) {
	rows, err := db.conn.Query(`
		SELECT path, checksum, encoding, line_ending, saved_at
		FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("history: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var r DocumentRow
		if err := rows.Scan(&r.Path, &r.Checksum, &r.Encoding, &r.LineEnding, &r.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertBackup records a backup snapshot in the catalog.
func (db *DB) InsertBackup(rec models.BackupRecord) error {
	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO backups (path, backup_path, checksum, size, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Path, rec.BackupPath, rec.Checksum, rec.Size, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: insert backup: %w", err)
	}
	return nil
}

// BackupsFor returns all backup records for a document, oldest first.
func (db *DB) BackupsFor(path string) ([]models.BackupRecord, error) {
	rows, err := db.conn.Query(`
		SELECT path, backup_path, checksum, size, created_at
		FROM backups WHERE path = ?
		ORDER BY created_at ASC, backup_path ASC
	`, path)
	if err != nil {
		return nil, fmt.Errorf("history: backups for %s: %w", path, err)
	}
	defer rows.Close()

	var out []models.BackupRecord
	for rows.Next() {
		var r models.BackupRecord
		if err := rows.Scan(&r.Path, &r.BackupPath, &r.Checksum, &r.Size, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteBackup removes a single backup record from the catalog.
func (db *DB) DeleteBackup(path, backupPath string) error {
	_, err := db.conn.Exec(`DELETE FROM backups WHERE path = ? AND backup_path = ?`, path, backupPath)
	if err != nil {
		return fmt.Errorf("history: delete backup: %w", err)
	}
	return nil
}
