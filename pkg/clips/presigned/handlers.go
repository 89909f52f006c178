package presigned

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mateer-t1/music-moments-api/pkg/clips"
)

// Handlers serves signed PUT/GET/HEAD requests against a local BlobStore.
// This endpoint mimics S3 presigned URL behavior for memory and filesystem storage.
type Handlers struct {
	signer    *Signer
	container string
	store     clips.BlobStore
}

// NewHandlers creates handlers for the objects of one container
func NewHandlers(signer *Signer, container string, store clips.BlobStore) *Handlers {
	return &Handlers{
		signer:    signer,
		container: container,
		store:     store,
	}
}

// Mount mounts the blob handlers on a chi router
func (h *Handlers) Mount(r chi.Router) {
	pattern := h.signer.PathPrefix() + "/*"
	r.Put(pattern, h.HandleUpload)
	r.Get(pattern, h.HandleDownload)
	r.Head(pattern, h.HandleDownload)
}

// HandleUpload handles PUT requests to write-create grant URLs
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	objectName, ok := h.authorize(w, r)
	if !ok {
		return
	}

	contentType := r.Header.Get("Content-Type")
	if err := h.store.Put(r.Context(), objectName, r.Body, contentType); err != nil {
		slog.Error("Blob upload failed", "object_name", objectName, "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to store object")
		return
	}

	slog.Info("Blob uploaded", "object_name", objectName)
	w.WriteHeader(http.StatusCreated)
}

// HandleDownload handles GET and HEAD requests to read grant URLs
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	objectName, ok := h.authorize(w, r)
	if !ok {
		return
	}

	info, err := h.store.Stat(r.Context(), objectName)
	if err != nil {
		if errors.Is(err, clips.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "object not found")
			return
		}
		slog.Error("Blob stat failed", "object_name", objectName, "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to read object")
		return
	}

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	rc, err := h.store.Get(r.Context(), objectName)
	if err != nil {
		slog.Error("Blob open failed", "object_name", objectName, "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to read object")
		return
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("Blob copy interrupted", "object_name", objectName, "err", err)
	}
}

// authorize resolves the object name from the URL path and validates the grant.
// It writes the error response itself when it returns false.
func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	resource := strings.TrimPrefix(r.URL.Path, h.signer.PathPrefix()+"/")
	container, objectName, found := strings.Cut(resource, "/")
	if !found || objectName == "" {
		writeError(w, r, http.StatusBadRequest, "object name is required in URL path")
		return "", false
	}
	if container != h.container {
		writeError(w, r, http.StatusNotFound, "container not found")
		return "", false
	}

	if err := h.signer.ValidateRequest(r, container, objectName); err != nil {
		slog.Warn("Blob grant rejected", "object_name", objectName, "method", r.Method, "err", err)
		status := http.StatusForbidden
		if errors.Is(err, ErrInvalidTimestamp) {
			status = http.StatusBadRequest
		}
		writeError(w, r, status, err.Error())
		return "", false
	}
	return objectName, true
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": message})
}
