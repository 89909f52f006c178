// Package api exposes the clip lifecycle service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/metrics"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

// CreateClipRequest is the request body for creating a clip
type CreateClipRequest struct {
	Title             string `json:"title"`
	Genre             string `json:"genre"`
	UserID            string `json:"userId"`
	VideoFileName     string `json:"videoFileName"`
	ThumbnailFileName string `json:"thumbnailFileName"`
}

// CreateClipResponse is the created record and its upload URLs
type CreateClipResponse struct {
	Clip               *clips.Clip `json:"clip"`
	VideoUploadURL     string      `json:"videoUploadUrl"`
	ThumbnailUploadURL *string     `json:"thumbnailUploadUrl"`
}

// PlayURLsResponse holds read URLs for a clip's objects
type PlayURLsResponse struct {
	ID           string  `json:"id"`
	UserID       string  `json:"userId"`
	VideoURL     string  `json:"videoUrl"`
	ThumbnailURL *string `json:"thumbnailUrl"`
}

// DeleteClipResponse reports the removed record and objects
type DeleteClipResponse struct {
	Deleted      bool     `json:"deleted"`
	DeletedBlobs []string `json:"deletedBlobs"`
	FailedBlobs  []string `json:"failedBlobs,omitempty"`
}

type ViewResponse struct {
	Views int64 `json:"views"`
}

type LikeRequest struct {
	UserID string `json:"userId"`
}

type LikeResponse struct {
	Likes int  `json:"likes"`
	Liked bool `json:"liked"`
}

type LoginRequest struct {
	Username string `json:"username"`
}

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler serves the clip and user routes
type Handler struct {
	service clips.Service
	logger  *slog.Logger
}

// NewHandler creates a new handler. A nil logger uses slog.Default().
func NewHandler(service clips.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes returns a router serving the clip and user routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

// Mount registers the clip and user routes, with request metrics, on r
func (h *Handler) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(metrics.Middleware)

		r.Route("/clips", func(r chi.Router) {
			r.Post("/", h.CreateClip)
			r.Get("/", h.ListClips)
			r.Get("/{id}", h.GetClip)
			r.Put("/{id}", h.UpdateClip)
			r.Delete("/{id}", h.DeleteClip)
			r.Get("/{id}/playUrls", h.GetPlayURLs)
			r.Post("/{id}/view", h.RecordView)
			r.Post("/{id}/like", h.ToggleLike)
		})
		r.Post("/users/login", h.Login)
	})
}

// CreateClip registers a clip and returns upload URLs for its objects
func (h *Handler) CreateClip(w http.ResponseWriter, r *http.Request) {
	var req CreateClipRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, "create clip", err)
		return
	}

	result, err := h.service.CreateClip(r.Context(), clips.CreateClipRequest{
		Title:             req.Title,
		Genre:             req.Genre,
		OwnerID:           req.UserID,
		VideoFileName:     req.VideoFileName,
		ThumbnailFileName: req.ThumbnailFileName,
	})
	if err != nil {
		h.writeError(w, r, "create clip", err)
		return
	}

	resp := CreateClipResponse{
		Clip:           result.Clip,
		VideoUploadURL: result.VideoUpload.URL,
	}
	if result.ThumbnailUpload != nil {
		resp.ThumbnailUploadURL = &result.ThumbnailUpload.URL
	}

	h.logger.Info("Clip created", "clip_id", result.Clip.ID, "owner_id", result.Clip.OwnerID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// ListClips lists one owner's clips, or every clip with all=true
func (h *Handler) ListClips(w http.ResponseWriter, r *http.Request) {
	all := false
	if raw := r.URL.Query().Get("all"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, "list clips", clips.NewValidationError("all", "all must be true or false"))
			return
		}
		all = parsed
	}

	result, err := h.service.ListClips(r.Context(), clips.ListClipsRequest{
		OwnerID: r.URL.Query().Get("userId"),
		All:     all,
	})
	if err != nil {
		h.writeError(w, r, "list clips", err)
		return
	}
	render.JSON(w, r, result)
}

// GetClip returns one clip record
func (h *Handler) GetClip(w http.ResponseWriter, r *http.Request) {
	clip, err := h.service.GetClip(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("userId"))
	if err != nil {
		h.writeError(w, r, "get clip", err)
		return
	}
	render.JSON(w, r, clip)
}

// UpdateClip applies a patch. Fields outside the patch are rejected.
func (h *Handler) UpdateClip(w http.ResponseWriter, r *http.Request) {
	var patch clips.ClipPatch
	if err := decodeJSON(w, r, &patch, true); err != nil {
		h.writeError(w, r, "update clip", err)
		return
	}

	clip, err := h.service.UpdateClip(r.Context(), clips.UpdateClipRequest{
		ID:      chi.URLParam(r, "id"),
		OwnerID: r.URL.Query().Get("userId"),
		Patch:   patch,
	})
	if err != nil {
		h.writeError(w, r, "update clip", err)
		return
	}

	h.logger.Info("Clip updated", "clip_id", clip.ID, "owner_id", clip.OwnerID, "status", clip.Status)
	render.JSON(w, r, clip)
}

// DeleteClip removes the clip's objects and record
func (h *Handler) DeleteClip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.service.DeleteClip(r.Context(), id, r.URL.Query().Get("userId"))
	if err != nil {
		h.writeError(w, r, "delete clip", err)
		return
	}

	deleted := result.DeletedBlobs
	if deleted == nil {
		deleted = []string{}
	}
	h.logger.Info("Clip deleted", "clip_id", id, "deleted_blobs", len(deleted), "failed_blobs", len(result.FailedBlobs))
	render.JSON(w, r, DeleteClipResponse{
		Deleted:      result.Deleted,
		DeletedBlobs: deleted,
		FailedBlobs:  result.FailedBlobs,
	})
}

// GetPlayURLs issues read URLs for the clip's objects
func (h *Handler) GetPlayURLs(w http.ResponseWriter, r *http.Request) {
	playback, err := h.service.GetPlayback(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("userId"))
	if err != nil {
		h.writeError(w, r, "get play urls", err)
		return
	}

	resp := PlayURLsResponse{
		ID:       playback.ClipID,
		UserID:   playback.OwnerID,
		VideoURL: playback.Video.URL,
	}
	if playback.Thumbnail != nil {
		resp.ThumbnailURL = &playback.Thumbnail.URL
	}
	render.JSON(w, r, resp)
}

// RecordView increments the view counter
func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.RecordView(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("userId"))
	if err != nil {
		h.writeError(w, r, "record view", err)
		return
	}
	render.JSON(w, r, ViewResponse{Views: views})
}

// ToggleLike likes or un-likes the clip for the liker in the body
func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	var req LikeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, "toggle like", err)
		return
	}

	result, err := h.service.ToggleLike(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("userId"), req.UserID)
	if err != nil {
		h.writeError(w, r, "toggle like", err)
		return
	}
	render.JSON(w, r, LikeResponse{Likes: result.Likes, Liked: result.Liked})
}

// Login creates the user on first login (201) and refreshes lastLoginAt after (200)
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.writeError(w, r, "login", err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Username)
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}

	if result.Created {
		h.logger.Info("User created", "user_id", result.User.ID)
		render.Status(r, http.StatusCreated)
	}
	render.JSON(w, r, result.User)
}

// decodeJSON reads one JSON object from the body into v. strict rejects
// unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, strict bool) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return clips.NewValidationError("body", "request body is required")
		}
		return clips.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if decoder.More() {
		return clips.NewValidationError("body", "request body must contain a single JSON object")
	}
	return nil
}

// statusFor maps a service error to an HTTP status and client message
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, clips.ErrValidation), errors.Is(err, clips.ErrInvalidStatusTransition):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, clips.ErrNotFound):
		return http.StatusNotFound, "clip not found"
	case errors.Is(err, clips.ErrConflict):
		return http.StatusConflict, "the record was modified concurrently, retry the request"
	case errors.Is(err, clips.ErrBackendUnavailable):
		backend := clips.BackendName(err)
		if backend == "" {
			backend = "storage"
		}
		return http.StatusInternalServerError, fmt.Sprintf(
			"%s unreachable: check that the %s backend is running and the service can reach it", backend, backend)
	case errors.Is(err, clips.ErrConfiguration):
		return http.StatusInternalServerError, "service is misconfigured: " + err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, message := statusFor(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "op", op, "status", status, "err", err)
	} else {
		h.logger.Debug("Request rejected", "op", op, "status", status, "err", err)
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}
