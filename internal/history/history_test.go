package history

import (
	"os"
	"testing"
	"time"

	"github.com/ostberg/quire/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "quire-history-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordSaveAndChecksum(t *testing.T) {
	db := testDB(t)
	row := DocumentRow{
		Path:       "src/main.go",
		Checksum:   "abc123",
		Encoding:   "utf-8",
		LineEnding: "lf",
		SavedAt:    time.Now(),
	}
	if err := db.RecordSave(row, "package main"); err != nil {
		t.Fatalf("RecordSave: %v", err)
	}

	cs, err := db.GetChecksum("src/main.go")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want abc123", cs)
	}

	// Unknown path yields empty checksum, no error.
	cs, err = db.GetChecksum("nope.txt")
	if err != nil || cs != "" {
		t.Errorf("unknown path: cs=%q err=%v", cs, err)
	}
}

func TestRecordSaveUpserts(t *testing.T) {
	db := testDB(t)
	row := DocumentRow{Path: "a.txt", Checksum: "one", SavedAt: time.Now()}
	_ = db.RecordSave(row, "one")
	row.Checksum = "two"
	if err := db.RecordSave(row, "two"); err != nil {
		t.Fatalf("RecordSave upsert: %v", err)
	}
	cs, _ := db.GetChecksum("a.txt")
	if cs != "two" {
		t.Errorf("checksum = %q, want two", cs)
	}
	docs, err := db.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("len = %d, want 1", len(docs))
	}
}

func TestBackupOrdering(t *testing.T) {
	db := testDB(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := models.BackupRecord{
			Path:       "doc.txt",
			BackupPath: ".backups/doc.txt." + string(rune('a'+i)) + ".bak",
			Checksum:   "cs",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.InsertBackup(rec); err != nil {
			t.Fatalf("InsertBackup: %v", err)
		}
	}

	recs, err := db.BackupsFor("doc.txt")
	if err != nil {
		t.Fatalf("BackupsFor: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].CreatedAt.Before(recs[i-1].CreatedAt) {
			t.Errorf("records not in ascending time order: %v", recs)
		}
	}
}

func TestDeleteBackup(t *testing.T) {
	db := testDB(t)
	rec := models.BackupRecord{Path: "d.txt", BackupPath: ".backups/d.txt.x.bak", CreatedAt: time.Now()}
	_ = db.InsertBackup(rec)
	if err := db.DeleteBackup("d.txt", rec.BackupPath); err != nil {
		t.Fatalf("DeleteBackup: %v", err)
	}
	recs, _ := db.BackupsFor("d.txt")
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

func TestDeleteDocumentRemovesBackupRows(t *testing.T) {
	db := testDB(t)
	_ = db.RecordSave(DocumentRow{Path: "gone.txt", Checksum: "x", SavedAt: time.Now()}, "body")
	_ = db.InsertBackup(models.BackupRecord{Path: "gone.txt", BackupPath: ".backups/gone.txt.a.bak", CreatedAt: time.Now()})

	if err := db.DeleteDocument("gone.txt"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if cs, _ := db.GetChecksum("gone.txt"); cs != "" {
		t.Errorf("checksum survived delete: %q", cs)
	}
	recs, _ := db.BackupsFor("gone.txt")
	if len(recs) != 0 {
		t.Errorf("backup rows survived delete: %d", len(recs))
	}
}

func TestSearchSaved(t *testing.T) {
	db := testDB(t)
	_ = db.RecordSave(DocumentRow{Path: "notes.txt", Checksum: "x", SavedAt: time.Now()},
		"the quick brown fox")
	_ = db.RecordSave(DocumentRow{Path: "other.txt", Checksum: "y", SavedAt: time.Now()},
		"nothing to see")

	results, err := db.SearchSaved("quick", 10)
	if err != nil {
		t.Fatalf("SearchSaved: %v", err)
	}
	if len(results) != 1 || results[0].Path != "notes.txt" {
		t.Errorf("results = %+v", results)
	}
}
