package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/transcribe"
)

// SweepHandler triggers a transcription retry/backfill sweep on demand.
type SweepHandler struct {
	pool *transcribe.WorkerPool
	log  zerolog.Logger
}

// NewSweepHandler creates a sweep handler.
func NewSweepHandler(pool *transcribe.WorkerPool, log zerolog.Logger) *SweepHandler {
	return &SweepHandler{
		pool: pool,
		log:  log.With().Str("handler", "sweep").Logger(),
	}
}

// Routes registers the sweep endpoint.
func (h *SweepHandler) Routes(r chi.Router) {
	r.Get("/parse/transcribe_all", h.Sweep)
}

// Sweep handles GET /parse/transcribe_all. Only one sweep runs at a
// time; a second trigger while one is running reports started=false.
func (h *SweepHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	queued, err := h.pool.Sweep(r.Context())
	switch {
	case errors.Is(err, transcribe.ErrSweepRunning):
		WriteJSON(w, http.StatusOK, map[string]any{
			"started": false,
			"message": "sweep already running",
		})
	case err != nil:
		h.log.Error().Err(err).Msg("sweep failed")
		WriteError(w, http.StatusInternalServerError, "sweep failed")
	default:
		WriteJSON(w, http.StatusOK, map[string]any{
			"started": true,
			"queued":  queued,
			"message": "sweep started",
		})
	}
}
