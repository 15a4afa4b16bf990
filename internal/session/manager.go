// Package session implements the session state manager: the set of open
// documents, their dirty/saved state, auto-save with backup rotation, and
// reconciliation against external filesystem changes.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ostberg/quire/internal/apperr"
	"github.com/ostberg/quire/internal/backup"
	"github.com/ostberg/quire/internal/checksum"
	"github.com/ostberg/quire/internal/history"
	"github.com/ostberg/quire/internal/models"
	"github.com/ostberg/quire/internal/storage"
	"github.com/ostberg/quire/internal/textenc"
)

// ErrClosed is returned by operations on a stopped manager.
var ErrClosed = errors.New("session: manager closed")

// Document event kinds delivered to the EventFunc.
const (
	EventOpened   = "opened"
	EventDirty    = "dirty"
	EventSaved    = "saved"
	EventReloaded = "reloaded"
	EventConflict = "conflict"
	EventOrphaned = "orphaned"
	EventClosed   = "closed"
	EventBackup   = "backup"
)

// EventFunc receives document lifecycle events. It is called from the
// manager's event loop and must not block.
type EventFunc func(kind, path string)

// Config holds the session policy knobs.
type Config struct {
	BackupEnabled    bool
	RetentionCount   int           // max backups per document; 0 = unbounded
	RetentionAge     time.Duration // max backup age; 0 = unbounded
	FallbackEncoding string        // charmap used when a file is not valid UTF-8
}

// document is the loop-owned mutable state for one tracked path.
type document struct {
	path        string
	buffer      string // UTF-8, LF-normalised
	dirty       bool
	enc         textenc.Info
	savedSum    string // checksum of the last-synced on-disk bytes
	savedAt     time.Time
	orphaned    bool
	extModified bool
}

func (d *document) snapshot() models.Document {
	return models.Document{
		Path:               d.path,
		Content:            d.buffer,
		Dirty:              d.dirty,
		Encoding:           d.enc.Encoding,
		LineEnding:         d.enc.LineEnding,
		Checksum:           d.savedSum,
		SavedAt:            d.savedAt,
		Orphaned:           d.orphaned,
		ExternallyModified: d.extModified,
	}
}

func (d *document) metadata() models.DocumentMetadata {
	return models.DocumentMetadata{
		Path:               d.path,
		Dirty:              d.dirty,
		Checksum:           d.savedSum,
		SavedAt:            d.savedAt,
		Orphaned:           d.orphaned,
		ExternallyModified: d.extModified,
	}
}

// Manager tracks open documents and keeps in-memory buffers, on-disk files,
// and the rolling backup history consistent.
//
// Concurrency model: a single internal event loop (goroutine) owns the
// document map. Public methods submit closures to this loop through a
// request channel, so watcher events, auto-save ticks, and caller edits are
// serialised and no mutexes are required.
type Manager struct {
	store  storage.Provider
	snaps  *backup.Store
	db     history.Catalog
	cfg    Config
	logger *slog.Logger
	events EventFunc

	reqCh   chan func()
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool

	docs map[string]*document // owned by the run loop
	now  func() time.Time
}

// NewManager creates a session manager and starts its event loop.
// events may be nil.
func NewManager(store storage.Provider, snaps *backup.Store, db history.Catalog, cfg Config, logger *slog.Logger, events EventFunc) *Manager {
	m := &Manager{
		store:   store,
		snaps:   snaps,
		db:      db,
		cfg:     cfg,
		logger:  logger,
		events:  events,
		reqCh:   make(chan func()),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
		docs:    make(map[string]*document),
		now:     time.Now,
	}
	go m.run()
	return m
}

func (m *Manager) run() {
	defer close(m.stopped)
	for {
		select {
		case <-m.stopCh:
			return
		case fn := <-m.reqCh:
			fn()
		}
	}
}

// Stop shuts down the event loop. Pending requests fail with ErrClosed.
func (m *Manager) Stop() {
	if m.closed.CompareAndSwap(false, true) {
		close(m.stopCh)
	}
	<-m.stopped
}

// do runs fn on the event loop and waits for it to finish.
func (m *Manager) do(fn func()) error {
	if m.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case m.reqCh <- func() { fn(); close(done) }:
	case <-m.stopped:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-m.stopped:
		return ErrClosed
	}
}

func (m *Manager) emit(kind, path string) {
	if m.events != nil {
		m.events(kind, path)
	}
}

// Open reads the file at path into a tracked document with best-effort
// encoding detection. If the path is already open the existing document is
// returned unchanged.
func (m *Manager) Open(path string) (models.Document, error) {
	var doc models.Document
	var err error
	if derr := m.do(func() { doc, err = m.open(path) }); derr != nil {
		return models.Document{}, derr
	}
	return doc, err
}

func (m *Manager) open(path string) (models.Document, error) {
	if d, ok := m.docs[path]; ok {
		return d.snapshot(), nil
	}
	data, err := m.store.Read(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("session: open %s: %v: %w", path, err, apperr.ErrRead)
	}
	text, info, err := textenc.Decode(data, m.cfg.FallbackEncoding)
	if err != nil {
		return models.Document{}, fmt.Errorf("session: open %s: %v: %w", path, err, apperr.ErrRead)
	}
	d := &document{
		path:     path,
		buffer:   text,
		enc:      info,
		savedSum: checksum.Sum(data),
		savedAt:  m.now(),
	}
	m.docs[path] = d
	m.emit(EventOpened, path)
	return d.snapshot(), nil
}

// Create tracks a new unsaved document at path. The file must not exist yet;
// it is created on disk by the first successful Save.
func (m *Manager) Create(path, content string) (models.Document, error) {
	var doc models.Document
	var err error
	if derr := m.do(func() { doc, err = m.create(path, content) }); derr != nil {
		return models.Document{}, derr
	}
	return doc, err
}

func (m *Manager) create(path, content string) (models.Document, error) {
	if _, ok := m.docs[path]; ok {
		return models.Document{}, fmt.Errorf("session: create %s: %w", path, apperr.ErrAlreadyExists)
	}
	if _, err := m.store.Stat(path); err == nil {
		return models.Document{}, fmt.Errorf("session: create %s: %w", path, apperr.ErrAlreadyExists)
	}
	text, info, err := textenc.Decode([]byte(content), m.cfg.FallbackEncoding)
	if err != nil {
		return models.Document{}, fmt.Errorf("session: create %s: %v: %w", path, err, apperr.ErrRead)
	}
	d := &document{
		path:   path,
		buffer: text,
		dirty:  true,
		enc:    info,
	}
	m.docs[path] = d
	m.emit(EventOpened, path)
	return d.snapshot(), nil
}

// MarkDirty records that the buffer changed. It is idempotent and a no-op
// for untracked paths.
func (m *Manager) MarkDirty(path string) error {
	return m.do(func() {
		d, ok := m.docs[path]
		if !ok || d.dirty {
			return
		}
		d.dirty = true
		m.emit(EventDirty, path)
	})
}

// UpdateBuffer replaces the in-memory buffer and marks the document dirty.
// The on-disk encoding recorded at open time is kept for the next save.
func (m *Manager) UpdateBuffer(path, content string) (models.Document, error) {
	var doc models.Document
	var err error
	if derr := m.do(func() { doc, err = m.updateBuffer(path, content) }); derr != nil {
		return models.Document{}, derr
	}
	return doc, err
}

func (m *Manager) updateBuffer(path, content string) (models.Document, error) {
	d, ok := m.docs[path]
	if !ok {
		return models.Document{}, fmt.Errorf("session: update %s: %w", path, apperr.ErrNotTracked)
	}
	text, _, err := textenc.Decode([]byte(content), m.cfg.FallbackEncoding)
	if err != nil {
		return models.Document{}, fmt.Errorf("session: update %s: %v: %w", path, err, apperr.ErrRead)
	}
	d.buffer = text
	if !d.dirty {
		d.dirty = true
		m.emit(EventDirty, path)
	}
	return d.snapshot(), nil
}

// Save writes the buffer to disk atomically. When backups are enabled a
// snapshot of the buffer is taken before the canonical write is attempted,
// so a failed write never loses the last-known-good state. On failure the
// dirty flag and buffer are left unchanged so the caller can retry.
func (m *Manager) Save(path string) (models.Document, error) {
	var doc models.Document
	var err error
	if derr := m.do(func() {
		d, ok := m.docs[path]
		if !ok {
			err = fmt.Errorf("session: save %s: %w", path, apperr.ErrNotTracked)
			return
		}
		if err = m.save(d); err == nil {
			doc = d.snapshot()
		}
	}); derr != nil {
		return models.Document{}, derr
	}
	return doc, err
}

// save runs on the event loop. Ordering is significant: the backup snapshot
// must exist before the canonical file is overwritten.
func (m *Manager) save(d *document) error {
	data, err := textenc.Encode(d.buffer, d.enc)
	if err != nil {
		return fmt.Errorf("session: save %s: %v: %w", d.path, err, apperr.ErrWrite)
	}

	if m.cfg.BackupEnabled && d.dirty {
		rec, err := m.snaps.Snapshot(d.path, data, m.now())
		if err != nil {
			return fmt.Errorf("session: backup %s: %v: %w", d.path, err, apperr.ErrWrite)
		}
		if err := m.db.InsertBackup(rec); err != nil {
			m.logger.Warn("session: backup catalog insert failed",
				slog.String("path", d.path), slog.String("error", err.Error()))
		}
		m.emit(EventBackup, d.path)
		if _, err := m.prune(d.path); err != nil {
			m.logger.Warn("session: prune failed",
				slog.String("path", d.path), slog.String("error", err.Error()))
		}
	}

	if err := m.store.Write(d.path, data); err != nil {
		return fmt.Errorf("session: save %s: %v: %w", d.path, err, apperr.ErrWrite)
	}

	d.dirty = false
	d.savedSum = checksum.Sum(data)
	d.savedAt = m.now()
	d.orphaned = false
	d.extModified = false

	if err := m.db.RecordSave(history.DocumentRow{
		Path:       d.path,
		Checksum:   d.savedSum,
		Encoding:   d.enc.Encoding,
		LineEnding: d.enc.LineEnding,
		SavedAt:    d.savedAt,
	}, d.buffer); err != nil {
		m.logger.Warn("session: record save failed",
			slog.String("path", d.path), slog.String("error", err.Error()))
	}

	m.emit(EventSaved, d.path)
	return nil
}

// AutoSaveTick saves every dirty document that is not in conflict with an
// external change. Failures are logged and do not stop the sweep; the
// number of successful saves is returned.
func (m *Manager) AutoSaveTick() (int, error) {
	saved := 0
	err := m.do(func() {
		for _, path := range m.sortedPaths() {
			d := m.docs[path]
			if !d.dirty || d.extModified {
				continue
			}
			if err := m.save(d); err != nil {
				m.logger.Error("session: auto-save failed",
					slog.String("path", d.path), slog.String("error", err.Error()))
				continue
			}
			m.logger.Debug("session: auto-saved", slog.String("path", d.path))
			saved++
		}
	})
	return saved, err
}

// Reconcile applies an external-change notification to the tracked document
// at that path. Events for untracked paths are ignored. A modify event on a
// clean document reloads it; on a dirty document it surfaces ErrConflict and
// leaves the buffer untouched. Deletes and renames mark the document
// orphaned: still editable, but the next save recreates the file.
func (m *Manager) Reconcile(ev models.ChangeEvent) error {
	var err error
	if derr := m.do(func() { err = m.reconcile(ev) }); derr != nil {
		return derr
	}
	return err
}

func (m *Manager) reconcile(ev models.ChangeEvent) error {
	d, ok := m.docs[ev.Path]
	if !ok {
		return nil
	}

	switch ev.Kind {
	case models.ChangeDeleted, models.ChangeRenamed:
		if !d.orphaned {
			d.orphaned = true
			m.emit(EventOrphaned, ev.Path)
		}
		return nil

	case models.ChangeModified:
		meta, err := m.store.Stat(ev.Path)
		if err != nil {
			// File vanished between the event and the stat.
			if !d.orphaned {
				d.orphaned = true
				m.emit(EventOrphaned, ev.Path)
			}
			return nil
		}
		if meta.Checksum == d.savedSum {
			// Echo of our own atomic save; nothing diverged.
			return nil
		}
		if d.dirty {
			d.extModified = true
			m.emit(EventConflict, ev.Path)
			return fmt.Errorf("session: reconcile %s: %w", ev.Path, apperr.ErrConflict)
		}
		return m.reload(d)
	}
	return nil
}

func (m *Manager) reload(d *document) error {
	data, err := m.store.Read(d.path)
	if err != nil {
		return fmt.Errorf("session: reload %s: %v: %w", d.path, err, apperr.ErrRead)
	}
	text, info, err := textenc.Decode(data, m.cfg.FallbackEncoding)
	if err != nil {
		return fmt.Errorf("session: reload %s: %v: %w", d.path, err, apperr.ErrRead)
	}
	d.buffer = text
	d.enc = info
	d.savedSum = checksum.Sum(data)
	d.savedAt = m.now()
	d.orphaned = false
	d.extModified = false
	m.emit(EventReloaded, d.path)
	return nil
}

// Close removes the document from tracking. A dirty document is refused
// unless discard is set, and stays tracked.
func (m *Manager) Close(path string, discard bool) error {
	var err error
	if derr := m.do(func() {
		d, ok := m.docs[path]
		if !ok {
			err = fmt.Errorf("session: close %s: %w", path, apperr.ErrNotTracked)
			return
		}
		if d.dirty && !discard {
			err = fmt.Errorf("session: close %s: %w", path, apperr.ErrUnsavedChanges)
			return
		}
		delete(m.docs, path)
		m.emit(EventClosed, path)
	}); derr != nil {
		return derr
	}
	return err
}

// Rename re-keys a tracked document after its file moved within the
// workspace. Untracked paths are a no-op.
func (m *Manager) Rename(oldPath, newPath string) error {
	return m.do(func() {
		d, ok := m.docs[oldPath]
		if !ok {
			return
		}
		delete(m.docs, oldPath)
		d.path = newPath
		m.docs[newPath] = d
	})
}

// Get returns a snapshot of the tracked document at path.
func (m *Manager) Get(path string) (models.Document, error) {
	var doc models.Document
	var err error
	if derr := m.do(func() {
		d, ok := m.docs[path]
		if !ok {
			err = fmt.Errorf("session: get %s: %w", path, apperr.ErrNotTracked)
			return
		}
		doc = d.snapshot()
	}); derr != nil {
		return models.Document{}, derr
	}
	return doc, err
}

// List returns metadata for every tracked document, sorted by path.
func (m *Manager) List() ([]models.DocumentMetadata, error) {
	var out []models.DocumentMetadata
	if err := m.do(func() {
		for _, path := range m.sortedPaths() {
			out = append(out, m.docs[path].metadata())
		}
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Tracked reports whether path is currently tracked.
func (m *Manager) Tracked(path string) bool {
	tracked := false
	_ = m.do(func() { _, tracked = m.docs[path] })
	return tracked
}

// PruneBackups enforces the retention policy for path and returns the
// number of backups removed. Both knobs apply; the most restrictive wins.
func (m *Manager) PruneBackups(path string) (int, error) {
	var pruned int
	var err error
	if derr := m.do(func() { pruned, err = m.prune(path) }); derr != nil {
		return 0, derr
	}
	return pruned, err
}

// prune runs on the event loop. Records arrive oldest first; a record is
// removed when it exceeds the count bound or the age bound.
func (m *Manager) prune(path string) (int, error) {
	recs, err := m.db.BackupsFor(path)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for i, rec := range recs {
		overCount := m.cfg.RetentionCount > 0 && i < len(recs)-m.cfg.RetentionCount
		overAge := m.cfg.RetentionAge > 0 && m.now().Sub(rec.CreatedAt) > m.cfg.RetentionAge
		if !overCount && !overAge {
			continue
		}
		if err := m.snaps.Remove(rec); err != nil {
			m.logger.Warn("session: remove backup failed",
				slog.String("backup", rec.BackupPath), slog.String("error", err.Error()))
			continue
		}
		if err := m.db.DeleteBackup(rec.Path, rec.BackupPath); err != nil {
			m.logger.Warn("session: delete backup record failed",
				slog.String("backup", rec.BackupPath), slog.String("error", err.Error()))
			continue
		}
		pruned++
	}
	return pruned, nil
}

func (m *Manager) sortedPaths() []string {
	paths := make([]string, 0, len(m.docs))
	for p := range m.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
