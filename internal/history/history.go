package history

import "github.com/ostberg/quire/internal/models"

// Catalog defines the interface for save-history and backup-record
// operations. Consumers should depend on this interface rather than the
// concrete *DB type to facilitate testing with mocks.
type Catalog interface {
	RecordSave(row DocumentRow, body string) error
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	ListDocuments() ([]DocumentRow, error)
	InsertBackup(rec models.BackupRecord) error
	BackupsFor(path string) ([]models.BackupRecord, error)
	DeleteBackup(path, backupPath string) error
	SearchSaved(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
