package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, dir
}

func TestSnapshotAndRead(t *testing.T) {
	s, dir := testStore(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	rec, err := s.Snapshot("src/main.go", []byte("package main"), now)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if rec.Path != "src/main.go" {
		t.Errorf("path = %q", rec.Path)
	}
	if !strings.Contains(rec.BackupPath, ".backups") {
		t.Errorf("backup path outside .backups: %q", rec.BackupPath)
	}
	if !strings.HasSuffix(rec.BackupPath, ".bak") {
		t.Errorf("backup path = %q", rec.BackupPath)
	}
	if rec.Size != int64(len("package main")) {
		t.Errorf("size = %d", rec.Size)
	}

	got, err := s.Read(rec)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "package main" {
		t.Errorf("content = %q", got)
	}

	// Snapshot lands beside the original file.
	if _, err := os.Stat(filepath.Join(dir, "src", ".backups")); err != nil {
		t.Errorf("expected .backups dir beside file: %v", err)
	}
}

func TestSnapshotSameSecondNoCollision(t *testing.T) {
	s, _ := testStore(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	a, err := s.Snapshot("f.txt", []byte("one"), now)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	b, err := s.Snapshot("f.txt", []byte("two"), now)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if a.BackupPath == b.BackupPath {
		t.Errorf("colliding backup paths: %q", a.BackupPath)
	}
	gotA, _ := s.Read(a)
	gotB, _ := s.Read(b)
	if string(gotA) != "one" || string(gotB) != "two" {
		t.Errorf("contents: %q %q", gotA, gotB)
	}
}

func TestRemove(t *testing.T) {
	s, _ := testStore(t)
	rec, _ := s.Snapshot("r.txt", []byte("x"), time.Now())
	if err := s.Remove(rec); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Read(rec); err == nil {
		t.Error("expected error reading removed snapshot")
	}
	// Removing again is not an error.
	if err := s.Remove(rec); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s, _ := testStore(t)
	if _, err := s.Snapshot("../outside.txt", []byte("x"), time.Now()); err == nil {
		t.Error("expected error for escaping path")
	}
	if _, err := s.Snapshot("/abs.txt", []byte("x"), time.Now()); err == nil {
		t.Error("expected error for absolute path")
	}
}
