package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ostberg/quire/internal/sessionservice"
	"github.com/ostberg/quire/internal/storage"
)

// SnapshotHandler serves raw backup snapshot content for download.
type SnapshotHandler struct {
	svc *sessionservice.Service
}

// NewSnapshotHandler creates a handler backed by the session service.
func NewSnapshotHandler(svc *sessionservice.Service) *SnapshotHandler {
	return &SnapshotHandler{svc: svc}
}

// validBackupPath checks that a workspace-relative snapshot path points into
// a backup directory and does not traverse out of the workspace.
func validBackupPath(p string) bool {
	if p == "" || filepath.IsAbs(p) {
		return false
	}
	cleaned := filepath.Clean(p)
	if strings.HasPrefix(cleaned, "..") {
		return false
	}
	dir := filepath.Base(filepath.Dir(cleaned))
	return dir == storage.BackupDirName
}

// Download handles GET /api/snapshots/*?backup=<backup_path>. The wildcard is
// the document path; the query parameter names the snapshot file. Content is
// returned as stored on disk, in the document's original encoding.
//
//	@Summary		Download one backup snapshot's raw content
//	@Tags			backups
//	@Produce		application/octet-stream
//	@Param			path	path		string	true	"Document path"
//	@Param			backup	query		string	true	"Snapshot path"
//	@Success		200		{string}	string	"Snapshot bytes"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/snapshots/{path} [get]
func (h *SnapshotHandler) Download(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	backupPath := r.URL.Query().Get("backup")
	if !validBackupPath(backupPath) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid backup path"))
		return
	}
	data, err := h.svc.ReadBackup(r.Context(), path, backupPath)
	if err != nil {
		writeError(w, "read snapshot", path, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(backupPath)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
