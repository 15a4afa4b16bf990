package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ostberg/quire/internal/backup"
	"github.com/ostberg/quire/internal/history"
	"github.com/ostberg/quire/internal/storage"
)

// watchTestEnv sets up a workspace, a manager, and a running watcher.
func watchTestEnv(t *testing.T, cfg Config) (*Manager, string, storage.Provider, *eventRecorder) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	snaps, err := backup.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	dbFile, err := os.CreateTemp("", "quire-watch-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })
	db, err := history.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	rec := &eventRecorder{}
	logger := testLogger()
	mgr := NewManager(store, snaps, db, cfg, logger, rec.record)
	t.Cleanup(mgr.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = Watch(ctx, mgr, store, dir, logger) }()
	time.Sleep(100 * time.Millisecond)

	return mgr, dir, store, rec
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatchExternalModifyReloadsCleanDocument(t *testing.T) {
	mgr, dir, _, _ := watchTestEnv(t, Config{})
	writeFile(t, dir, "w.txt", "v1\n")

	if _, err := mgr.Open("w.txt"); err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "w.txt", "v2\n")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		doc, err := mgr.Get("w.txt")
		return err == nil && doc.Content == "v2\n"
	}, "external modify did not reload the clean document")
}

func TestWatchExternalModifyFlagsDirtyDocument(t *testing.T) {
	mgr, dir, _, rec := watchTestEnv(t, Config{})
	writeFile(t, dir, "w.txt", "v1\n")

	_, _ = mgr.Open("w.txt")
	_, _ = mgr.UpdateBuffer("w.txt", "local\n")

	writeFile(t, dir, "w.txt", "remote\n")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("conflict:w.txt")
	}, "expected conflict event for dirty document")

	doc, _ := mgr.Get("w.txt")
	if doc.Content != "local\n" {
		t.Errorf("buffer = %q, want local edit preserved", doc.Content)
	}
}

func TestWatchDeleteOrphans(t *testing.T) {
	mgr, dir, _, rec := watchTestEnv(t, Config{})
	writeFile(t, dir, "d.txt", "v1\n")

	_, _ = mgr.Open("d.txt")
	_ = os.Remove(filepath.Join(dir, "d.txt"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("orphaned:d.txt")
	}, "expected orphaned event after external delete")

	doc, err := mgr.Get("d.txt")
	if err != nil || !doc.Orphaned {
		t.Errorf("doc = %+v, err = %v", doc, err)
	}
}

func TestWatchRenameOrphansOldPath(t *testing.T) {
	mgr, dir, _, rec := watchTestEnv(t, Config{})
	writeFile(t, dir, "a.txt", "v1\n")

	_, _ = mgr.Open("a.txt")
	_ = os.Rename(filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("orphaned:a.txt")
	}, "expected orphaned event after external rename")
}

func TestWatchIgnoresOwnSave(t *testing.T) {
	mgr, dir, _, rec := watchTestEnv(t, Config{})
	writeFile(t, dir, "s.txt", "v1\n")

	_, _ = mgr.Open("s.txt")
	_, _ = mgr.UpdateBuffer("s.txt", "v2\n")
	if _, err := mgr.Save("s.txt"); err != nil {
		t.Fatal(err)
	}

	// Give the watcher time to deliver the echo of our atomic write.
	time.Sleep(500 * time.Millisecond)

	if rec.has("conflict:s.txt") || rec.has("reloaded:s.txt") {
		t.Error("own save was treated as external change")
	}
	doc, _ := mgr.Get("s.txt")
	if doc.Dirty || doc.Content != "v2\n" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestWatchIgnoresBackupDir(t *testing.T) {
	mgr, dir, _, rec := watchTestEnv(t, Config{BackupEnabled: true})
	writeFile(t, dir, "b.txt", "v1\n")

	_, _ = mgr.Open("b.txt")
	_, _ = mgr.UpdateBuffer("b.txt", "v2\n")
	if _, err := mgr.Save("b.txt"); err != nil {
		t.Fatal(err)
	}

	// The snapshot write inside .backups must not generate change events.
	time.Sleep(500 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, e := range rec.events {
		if e == "conflict:b.txt" || e == "reloaded:b.txt" {
			t.Errorf("backup write leaked into change events: %v", rec.events)
		}
	}
}

func TestWatchNewSubdir(t *testing.T) {
	mgr, dir, _, _ := watchTestEnv(t, Config{})

	sub := filepath.Join(dir, "pkg")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	writeFile(t, dir, filepath.Join("pkg", "deep.txt"), "v1\n")
	if _, err := mgr.Open(filepath.Join("pkg", "deep.txt")); err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, filepath.Join("pkg", "deep.txt"), "v2\n")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		doc, err := mgr.Get(filepath.Join("pkg", "deep.txt"))
		return err == nil && doc.Content == "v2\n"
	}, "modify in a runtime-created subdir was not observed")
}
