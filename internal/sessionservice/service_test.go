package sessionservice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ostberg/quire/internal/apperr"
	"github.com/ostberg/quire/internal/backup"
	"github.com/ostberg/quire/internal/session"
	"github.com/ostberg/quire/internal/testutil"
)

func testService(t *testing.T) (*Service, string) {
	t.Helper()
	dir, store := testutil.TestWorkspace(t)
	snaps, err := backup.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	db := testutil.TestDB(t)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mgr := session.NewManager(store, snaps, db, session.Config{BackupEnabled: true}, logger, nil)
	t.Cleanup(mgr.Stop)

	return NewService(mgr, store, snaps, db), dir
}

func seedFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	abs := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRestoreBackupIntoBuffer(t *testing.T) {
	svc, dir := testService(t)
	ctx := context.Background()
	seedFile(t, dir, "a.txt", "v1\n")

	if _, err := svc.OpenDocument(ctx, "a.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateBuffer(ctx, "a.txt", "v2\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SaveDocument(ctx, "a.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateBuffer(ctx, "a.txt", "v3\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SaveDocument(ctx, "a.txt"); err != nil {
		t.Fatal(err)
	}

	recs, err := svc.ListBackups(ctx, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("backups = %d, want 2", len(recs))
	}

	// Restore the oldest snapshot (the v2 buffer).
	doc, err := svc.RestoreBackup(ctx, "a.txt", recs[0].BackupPath)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if doc.Content != "v2\n" {
		t.Errorf("restored buffer = %q, want v2", doc.Content)
	}
	if !doc.Dirty {
		t.Error("restored document should be dirty")
	}

	// Disk is untouched until the next save.
	data, _ := os.ReadFile(filepath.Join(dir, "a.txt"))
	if string(data) != "v3\n" {
		t.Errorf("disk = %q, want v3 until save", data)
	}
}

func TestRestoreBackupMissingSnapshot(t *testing.T) {
	svc, dir := testService(t)
	ctx := context.Background()
	seedFile(t, dir, "a.txt", "v1\n")

	_, err := svc.RestoreBackup(ctx, "a.txt", "nope.bak")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRestoreBackupRecreatesDeletedFile(t *testing.T) {
	svc, dir := testService(t)
	ctx := context.Background()
	seedFile(t, dir, "gone.txt", "v1\n")

	_, _ = svc.OpenDocument(ctx, "gone.txt")
	_, _ = svc.UpdateBuffer(ctx, "gone.txt", "v2\n")
	if _, err := svc.SaveDocument(ctx, "gone.txt"); err != nil {
		t.Fatal(err)
	}
	recs, _ := svc.ListBackups(ctx, "gone.txt")
	if len(recs) != 1 {
		t.Fatalf("backups = %d", len(recs))
	}

	// Close the document and delete the file from disk.
	if err := svc.CloseDocument(ctx, "gone.txt", false); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "gone.txt")); err != nil {
		t.Fatal(err)
	}

	doc, err := svc.RestoreBackup(ctx, "gone.txt", recs[0].BackupPath)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if doc.Content != "v2\n" || !doc.Dirty {
		t.Errorf("doc = %+v", doc)
	}
}

func TestRemoveFileCleansEverything(t *testing.T) {
	svc, dir := testService(t)
	ctx := context.Background()
	seedFile(t, dir, "r.txt", "v1\n")

	_, _ = svc.OpenDocument(ctx, "r.txt")
	_, _ = svc.UpdateBuffer(ctx, "r.txt", "v2\n")
	if _, err := svc.SaveDocument(ctx, "r.txt"); err != nil {
		t.Fatal(err)
	}

	if err := svc.RemoveFile(ctx, "r.txt", false); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "r.txt")); !os.IsNotExist(err) {
		t.Error("file still on disk")
	}
	recs, _ := svc.ListBackups(ctx, "r.txt")
	if len(recs) != 0 {
		t.Errorf("backup records remain: %v", recs)
	}
	docs, _ := svc.ListDocuments(ctx)
	if len(docs) != 0 {
		t.Errorf("document still tracked: %v", docs)
	}
}

func TestRemoveFileRefusesDirtyWithoutDiscard(t *testing.T) {
	svc, dir := testService(t)
	ctx := context.Background()
	seedFile(t, dir, "d.txt", "v1\n")

	_, _ = svc.OpenDocument(ctx, "d.txt")
	_, _ = svc.UpdateBuffer(ctx, "d.txt", "v2\n")

	err := svc.RemoveFile(ctx, "d.txt", false)
	if !errors.Is(err, apperr.ErrUnsavedChanges) {
		t.Errorf("err = %v, want ErrUnsavedChanges", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "d.txt")); statErr != nil {
		t.Error("file should survive a refused removal")
	}
}

func TestRenameFile(t *testing.T) {
	svc, dir := testService(t)
	ctx := context.Background()
	seedFile(t, dir, "old.txt", "v1\n")

	_, _ = svc.OpenDocument(ctx, "old.txt")

	if err := svc.RenameFile(ctx, "old.txt", filepath.Join("sub", "new.txt")); err != nil {
		t.Fatalf("RenameFile: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sub", "new.txt")); err != nil {
		t.Errorf("moved file missing: %v", err)
	}
	doc, err := svc.GetDocument(ctx, filepath.Join("sub", "new.txt"))
	if err != nil {
		t.Fatalf("GetDocument after rename: %v", err)
	}
	if doc.Content != "v1\n" {
		t.Errorf("buffer = %q", doc.Content)
	}
	if _, err := svc.GetDocument(ctx, "old.txt"); !errors.Is(err, apperr.ErrNotTracked) {
		t.Errorf("old path still tracked: %v", err)
	}
}
