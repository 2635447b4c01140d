package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sonata-project/mediastore/interfaces"
	"github.com/sonata-project/mediastore/media"
)

const (
	// maxBodySize is the maximum allowed upload size (32MB).
	maxBodySize = 32 * 1024 * 1024
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// UploadResponse is returned for every stored media file.
type UploadResponse struct {
	Key  string `json:"key"`
	Path string `json:"path"`
	URL  string `json:"url"`
	Size int    `json:"size"`
}

// Handler serves the media API on top of a media manager and the store it
// writes to.
type Handler struct {
	manager *media.Manager
	store   interfaces.StorageBackend
	log     *slog.Logger
}

// NewHandler creates a new HTTP request handler.
//
// Parameters:
//   - manager: assigns storage paths and writes uploads
//   - store: the store the manager writes to, used for direct file access
//   - log: Structured logger for operational insights
func NewHandler(manager *media.Manager, store interfaces.StorageBackend, log *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		store:   store,
		log:     log,
	}
}

// HandleUpload stores the request body as a media file.
//
// URL format: POST /api/media/{context}?id=<id>&reference=<file name>
//
// Response: JSON UploadResponse with the storage key, the assigned directory,
// the public URL and the number of bytes stored.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	asset := &media.Asset{
		Context:   chi.URLParam(r, "context"),
		ID:        r.URL.Query().Get("id"),
		Reference: r.URL.Query().Get("reference"),
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("failed to read request body: %w", err)})
		return
	}
	if len(body) > maxBodySize {
		h.writeError(w, &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: errors.New("request body too large")})
		return
	}

	n, err := h.manager.Save(r.Context(), asset, body)
	if err != nil {
		h.writeError(w, err)
		return
	}

	key, err := h.manager.ReferenceKey(asset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	url, err := h.manager.PublicURL(asset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info("Stored media",
		slog.String("context", asset.Context),
		slog.String("id", asset.ID),
		slog.String("key", key),
		slog.Int("size", n))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(UploadResponse{Key: key, Path: asset.Path, URL: url, Size: n}); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleGetFile returns the content stored under the key in the URL.
func (h *Handler) HandleGetFile(w http.ResponseWriter, r *http.Request) {
	key := fileKey(r)

	content, err := h.store.Read(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}

	mtime, err := h.store.Mtime(r.Context(), key)
	switch {
	case err == nil:
		w.Header().Set("Last-Modified", mtime.UTC().Format(http.TimeFormat))
	case !errors.Is(err, interfaces.ErrUnsupported):
		h.log.Debug("Failed to get modification time", slog.String("key", key), "err", err)
	}

	w.Header().Set("Content-Type", http.DetectContentType(content))
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

// HandleHeadFile answers 200 when the key exists and 404 otherwise.
func (h *Handler) HandleHeadFile(w http.ResponseWriter, r *http.Request) {
	exists, err := h.store.Exists(r.Context(), fileKey(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	key := fileKey(r)
	if err := h.store.Delete(r.Context(), key); err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info("Deleted media", slog.String("key", key))
	w.WriteHeader(http.StatusNoContent)
}

// HandleKeys lists every key in the store as a JSON array.
func (h *Handler) HandleKeys(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	keys, err := h.store.Keys(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}

	h.log.Debug("Listed keys",
		slog.Int("count", len(keys)),
		slog.Duration("duration", time.Since(start)))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(keys); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// writeError maps storage and validation errors to status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err)
	} else {
		h.log.Debug("Request rejected", slog.Int("status", status), "err", err)
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, interfaces.ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, media.ErrInvalidAsset), errors.Is(err, interfaces.ErrInvalidKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fileKey(r *http.Request) string {
	return strings.TrimPrefix(chi.URLParam(r, "*"), "/")
}
