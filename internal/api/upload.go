package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/ingest"
	"github.com/snarg/listen-engine/internal/metrics"
	"github.com/snarg/listen-engine/internal/repo"
)

// UploadHandler accepts voice memo uploads from elder clients.
type UploadHandler struct {
	orchestrator *ingest.Orchestrator
	maxBytes     int64
	log          zerolog.Logger
}

// NewUploadHandler creates an upload handler.
func NewUploadHandler(orchestrator *ingest.Orchestrator, maxBytes int64, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		orchestrator: orchestrator,
		maxBytes:     maxBytes,
		log:          log.With().Str("handler", "upload").Logger(),
	}
}

// Routes registers the upload endpoint.
func (h *UploadHandler) Routes(r chi.Router) {
	r.Post("/listen/upload", h.Upload)
}

// Upload handles POST /listen/upload. The elder identity comes from the
// bearer token only; a caregiver token is rejected.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	acc, ok := AccountFrom(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if acc.Role != repo.RoleElder {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		WriteError(w, http.StatusForbidden, "only elder accounts can upload")
		return
	}

	// Slack over the limit so a just-over upload reads far enough to
	// fail validation instead of aborting the form parse.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		WriteErrorDetail(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		WriteError(w, http.StatusBadRequest, "audio_file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		WriteError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	result, err := h.orchestrator.Upload(r.Context(), acc.ID, header.Filename, data, header.Header.Get("Content-Type"))
	switch {
	case errors.Is(err, ingest.ErrEmptyFile),
		errors.Is(err, ingest.ErrBadExtension),
		errors.Is(err, ingest.ErrTooLarge):
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		WriteError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		h.log.Error().Err(err).Int64("elder_id", acc.ID).Msg("upload failed")
		WriteError(w, http.StatusInternalServerError, "failed to store recording")
	default:
		metrics.UploadsTotal.WithLabelValues("accepted").Inc()
		WriteJSON(w, http.StatusOK, map[string]any{
			"record_id": result.RecordID,
			"status":    string(result.Status),
		})
	}
}
