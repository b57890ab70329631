package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/tessera-kb/tessera/internal/apperr"
)

const maxUploadBytes = 100 << 20 // 100 MB

// AttachmentHandler accepts attachment uploads and serves stored files.
type AttachmentHandler struct {
	svc            *Service
	attachmentsDir string
}

// NewAttachmentHandler creates a handler. attachmentsDir is the absolute
// attachments root.
func NewAttachmentHandler(svc *Service, attachmentsDir string) *AttachmentHandler {
	return &AttachmentHandler{svc: svc, attachmentsDir: attachmentsDir}
}

// Upload handles POST /api/notes/{id}/attachments
// (multipart/form-data, field "file"). The upload is spooled to a temp
// file so the storage layer's size ceiling applies before anything lands
// in the mosaic.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "id")
	if noteID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid multipart")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'file' field in multipart form")
		return
	}
	defer file.Close()

	// Reject filenames carrying path components.
	name := filepath.Base(filepath.Clean(header.Filename))
	if name == "" || name == "." || name == ".." {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	tmpDir, err := os.MkdirTemp("", "tessera-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, name)
	dst, err := os.Create(tmpPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "failed to spool upload")
		return
	}
	if err := dst.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to spool upload")
		return
	}

	att, err := h.svc.AddAttachment(r.Context(), noteID, tmpPath)
	if err != nil {
		switch {
		case apperr.IsNotFound(err):
			writeError(w, http.StatusNotFound, "note not found")
		default:
			var attErr *apperr.AttachmentError
			if errors.As(err, &attErr) {
				writeError(w, http.StatusRequestEntityTooLarge, attErr.Error())
				return
			}
			slog.Error("attachment upload failed",
				slog.String("note_id", noteID), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, att)
}

// ServeFile handles GET /api/attachments/{noteID}/{filename}.
func (h *AttachmentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	filename := chi.URLParam(r, "filename")
	if noteID == "" || filename == "" {
		http.Error(w, "noteID and filename are required", http.StatusBadRequest)
		return
	}
	if filepath.Base(filename) != filename || filepath.Base(noteID) != noteID {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	abs := filepath.Join(h.attachmentsDir, noteID, filename)
	if _, err := os.Stat(abs); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}
