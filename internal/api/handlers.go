package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ostberg/quire/internal/apperr"
	"github.com/ostberg/quire/internal/sessionservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *sessionservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *sessionservice.Service) *Handler {
	return &Handler{svc: svc}
}

// docPath extracts the document path from the URL wildcard. Supports encoded
// slashes from OpenAPI clients (e.g. src%2Fmain.go).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, op, path string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrNotTracked), errors.Is(err, apperr.ErrRead):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("externally modified"))
	case errors.Is(err, apperr.ErrUnsavedChanges):
		writeJSON(w, http.StatusConflict, errorBody("unsaved changes"))
	default:
		slog.Error(op+" failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List open documents
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListDocuments(r.Context())
	if err != nil {
		slog.Error("list documents failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// CreateDocument handles POST /api/documents.
//
//	@Summary		Create a new unsaved document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDocumentRequest	true	"Document to create"
//	@Success		201		{object}	Document
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.CreateDocument(r.Context(), req.Path, req.Content)
	if err != nil {
		writeError(w, "create document", req.Path, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Get an open document with its buffer
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	Document
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.GetDocument(r.Context(), path)
	if err != nil {
		writeError(w, "get document", path, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// UpdateBuffer handles PUT /api/documents/*.
//
//	@Summary		Replace the in-memory buffer of an open document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Document path"
//	@Param			body	body		UpdateBufferRequest	true	"New buffer content"
//	@Success		200		{object}	Document
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [put]
func (h *Handler) UpdateBuffer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req UpdateBufferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	doc, err := h.svc.UpdateBuffer(r.Context(), path, req.Content)
	if err != nil {
		writeError(w, "update buffer", path, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// CloseDocument handles DELETE /api/documents/*. The discard query parameter
// allows dropping unsaved changes.
//
//	@Summary		Close an open document
//	@Tags			documents
//	@Param			path	path	string	true	"Document path"
//	@Param			discard	query	bool	false	"Drop unsaved changes"
//	@Success		204		"Document closed"
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [delete]
func (h *Handler) CloseDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	discard, _ := strconv.ParseBool(r.URL.Query().Get("discard"))
	if err := h.svc.CloseDocument(r.Context(), path, discard); err != nil {
		writeError(w, "close document", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OpenDocument handles POST /api/open/*.
//
//	@Summary		Open a workspace file into the session
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"File path"
//	@Success		200		{object}	Document
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/open/{path} [post]
func (h *Handler) OpenDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.OpenDocument(r.Context(), path)
	if err != nil {
		writeError(w, "open document", path, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// SaveDocument handles POST /api/save/*.
//
//	@Summary		Flush an open document's buffer to disk
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	Document
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/save/{path} [post]
func (h *Handler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.SaveDocument(r.Context(), path)
	if err != nil {
		writeError(w, "save document", path, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// MarkDirty handles POST /api/touch/*.
//
//	@Summary		Flag an open document as having unsaved changes
//	@Tags			documents
//	@Param			path	path	string	true	"Document path"
//	@Success		204		"Flag recorded"
//	@Security		BearerAuth
//	@Router			/touch/{path} [post]
func (h *Handler) MarkDirty(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.MarkDirty(r.Context(), path); err != nil {
		writeError(w, "mark dirty", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFiles handles GET /api/files.
//
//	@Summary		List workspace files
//	@Tags			files
//	@Produce		json
//	@Success		200	{object}	FileListResponse
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.ListFiles(r.Context())
	if err != nil {
		slog.Error("list files failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// RemoveFile handles DELETE /api/files/*.
//
//	@Summary		Delete a workspace file, its backups, and its history
//	@Tags			files
//	@Param			path	path	string	true	"File path"
//	@Param			discard	query	bool	false	"Drop unsaved changes"
//	@Success		204		"File removed"
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [delete]
func (h *Handler) RemoveFile(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	discard, _ := strconv.ParseBool(r.URL.Query().Get("discard"))
	if err := h.svc.RemoveFile(r.Context(), path, discard); err != nil {
		writeError(w, "remove file", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveFile handles POST /api/move.
//
//	@Summary		Rename a workspace file
//	@Tags			files
//	@Accept			json
//	@Param			body	body	MoveFileRequest	true	"Source and destination"
//	@Success		204		"File moved"
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/move [post]
func (h *Handler) MoveFile(w http.ResponseWriter, r *http.Request) {
	var req MoveFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	if err := h.svc.RenameFile(r.Context(), req.From, req.To); err != nil {
		writeError(w, "move file", req.From, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBackups handles GET /api/backups/*.
//
//	@Summary		List backup snapshots for a document, oldest first
//	@Tags			backups
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	BackupListResponse
//	@Security		BearerAuth
//	@Router			/backups/{path} [get]
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	recs, err := h.svc.ListBackups(r.Context(), path)
	if err != nil {
		writeError(w, "list backups", path, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": recs})
}

// RestoreBackup handles POST /api/restore/*.
//
//	@Summary		Load a snapshot back into the document buffer
//	@Tags			backups
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string					true	"Document path"
//	@Param			body	body		RestoreBackupRequest	true	"Snapshot to restore"
//	@Success		200		{object}	Document
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/restore/{path} [post]
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req RestoreBackupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.BackupPath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("backup_path is required"))
		return
	}
	doc, err := h.svc.RestoreBackup(r.Context(), path, req.BackupPath)
	if err != nil {
		writeError(w, "restore backup", path, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// PruneBackups handles POST /api/prune/*.
//
//	@Summary		Apply the retention policy to a document's backups
//	@Tags			backups
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	PruneResponse
//	@Security		BearerAuth
//	@Router			/prune/{path} [post]
func (h *Handler) PruneBackups(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	pruned, err := h.svc.PruneBackups(r.Context(), path)
	if err != nil {
		writeError(w, "prune backups", path, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pruned": pruned})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search over last-saved document content
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.SearchSaved(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
