// Package api exposes the upload service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/stefando/streamupload/internal/auth"
	"github.com/stefando/streamupload/internal/errs"
	"github.com/stefando/streamupload/internal/upload"
)

// maxRequestBody caps the size of an upload request document.
const maxRequestBody = 64 << 10

// Uploader runs one streaming upload.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request) (*upload.Result, error)
}

var _ Uploader = (*upload.Service)(nil)

type handler struct {
	uploader Uploader
	log      zerolog.Logger
}

// NewRouter creates the chi router serving the upload API. apiKey enables
// X-API-Key checking on /v1 routes when non-empty.
func NewRouter(uploader Uploader, apiKey string, log zerolog.Logger) *chi.Mux {
	h := &handler{uploader: uploader, log: log}

	r := chi.NewRouter()

	// Middleware for all routes
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.APIKeyMiddleware(apiKey, log))
		r.Post("/upload", h.handleUpload)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}

// handleUpload streams the requested file into the bucket and returns where it landed.
func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req upload.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.uploader.Upload(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		h.log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("file_url", req.SourceURL).
			Int("status", status).
			Msg("upload failed")
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// statusFor maps an upload error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, upload.ErrInvalidRequest):
		return http.StatusBadRequest
	case errs.IsConfiguration(err):
		return http.StatusInternalServerError
	case errs.IsFetch(err), errs.IsObjectStore(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs one line per request with its outcome.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
