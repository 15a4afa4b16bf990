package session

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ostberg/quire/internal/models"
	"github.com/ostberg/quire/internal/storage"
)

// Watch starts an fsnotify watcher on the workspace root and feeds external
// change events into the manager until ctx is cancelled. The manager ignores
// events for paths it does not track.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a debounced reconciliation pass that re-stats
// every tracked document, since fsnotify only reports the old path.
func Watch(ctx context.Context, mgr *Manager, store storage.Provider, root string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	// rescanTimer debounces rename reconciliation.
	var rescanTimer *time.Timer
	var rescanCh <-chan time.Time

	scheduleRescan := func() {
		if rescanTimer == nil {
			rescanTimer = time.NewTimer(200 * time.Millisecond)
			rescanCh = rescanTimer.C
		} else {
			rescanTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rescanTimer != nil {
				rescanTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-rescanCh:
			rescanTracked(mgr, store, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name
			if skipPath(absPath) {
				continue
			}

			// New directories: add to the watcher.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					continue
				}
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				deliver(mgr, logger, models.ChangeEvent{Path: rel, Kind: models.ChangeModified})

			case ev.Op&fsnotify.Remove != 0:
				deliver(mgr, logger, models.ChangeEvent{Path: rel, Kind: models.ChangeDeleted})

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. The new path
				// arrives as a separate Create event (if it stays within a
				// watched dir). Mark the old path and schedule a rescan to
				// catch anything that moved back or away entirely.
				deliver(mgr, logger, models.ChangeEvent{Path: rel, Kind: models.ChangeRenamed})
				scheduleRescan()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func deliver(mgr *Manager, logger *slog.Logger, ev models.ChangeEvent) {
	if err := mgr.Reconcile(ev); err != nil {
		// Conflicts are surfaced through the event stream; here they are
		// only worth a log line.
		logger.Debug("watcher: reconcile",
			slog.String("path", ev.Path),
			slog.String("kind", ev.Kind),
			slog.String("result", err.Error()))
	}
}

// rescanTracked re-stats every tracked document after a rename storm:
// documents whose file no longer exists are reported deleted, and documents
// whose on-disk content diverged are reported modified.
func rescanTracked(mgr *Manager, store storage.Provider, logger *slog.Logger) {
	docs, err := mgr.List()
	if err != nil {
		return
	}
	for _, doc := range docs {
		meta, statErr := store.Stat(doc.Path)
		if statErr != nil {
			deliver(mgr, logger, models.ChangeEvent{Path: doc.Path, Kind: models.ChangeDeleted})
			continue
		}
		if meta.Checksum != doc.Checksum {
			deliver(mgr, logger, models.ChangeEvent{Path: doc.Path, Kind: models.ChangeModified})
		}
	}
}

// skipPath filters backup directories and in-flight atomic-write temp files.
func skipPath(p string) bool {
	base := filepath.Base(p)
	if strings.HasPrefix(base, ".quire-tmp-") {
		return true
	}
	sep := string(os.PathSeparator)
	return strings.Contains(p, sep+storage.BackupDirName+sep) ||
		strings.HasSuffix(p, sep+storage.BackupDirName)
}

// addDirsRecursive adds root and all its subdirectories to the watcher,
// skipping backup directories.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == storage.BackupDirName {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
