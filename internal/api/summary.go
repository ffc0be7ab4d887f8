package api

import (
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/metrics"
	"github.com/snarg/listen-engine/internal/repo"
	"github.com/snarg/listen-engine/internal/summarize"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// SummaryHandler serves per-(elder, date) daily summaries.
type SummaryHandler struct {
	aggregator *summarize.Aggregator
	log        zerolog.Logger
}

// NewSummaryHandler creates a summary handler.
func NewSummaryHandler(aggregator *summarize.Aggregator, log zerolog.Logger) *SummaryHandler {
	return &SummaryHandler{
		aggregator: aggregator,
		log:        log.With().Str("handler", "summary").Logger(),
	}
}

// Routes registers the summary endpoint.
func (h *SummaryHandler) Routes(r chi.Router) {
	r.Get("/parse/summary", h.Summary)
}

type summaryResponse struct {
	ElderID            int64    `json:"elder_id"`
	Date               string   `json:"date"`
	Summary            string   `json:"summary"`
	PhysicalStatus     string   `json:"physical_status"`
	PsychologicalNeeds string   `json:"psychological_needs"`
	Advice             string   `json:"advice"`
	GeneratedAt        string   `json:"generated_at"`
	SourceRecordIDs    []string `json:"source_record_ids"`
	Message            string   `json:"message"`
}

// Summary handles GET /parse/summary?elder_id&date&force.
// An empty day is a valid summary with message "no data", never a 404.
func (h *SummaryHandler) Summary(w http.ResponseWriter, r *http.Request) {
	acc, ok := AccountFrom(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	elderID, ok := QueryInt64(r, "elder_id")
	if !ok {
		// Elders may omit elder_id and get their own summary.
		if acc.Role != repo.RoleElder {
			WriteError(w, http.StatusBadRequest, "elder_id is required")
			return
		}
		elderID = acc.ID
	}
	date, ok := QueryString(r, "date")
	if !ok || !dateRe.MatchString(date) {
		WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		WriteError(w, http.StatusBadRequest, "date must be a valid calendar date")
		return
	}
	force, _ := QueryBool(r, "force")

	// A summarizer outage is reported through message, not an error;
	// only repository failures reach this branch.
	artifact, message, err := h.aggregator.GetOrRefresh(r.Context(), elderID, date, force)
	if err != nil {
		metrics.SummariesTotal.WithLabelValues("error").Inc()
		h.log.Error().Err(err).Int64("elder_id", elderID).Str("date", date).Msg("summary failed")
		WriteError(w, http.StatusInternalServerError, "summary unavailable")
		return
	}
	metrics.SummariesTotal.WithLabelValues(message).Inc()

	WriteJSON(w, http.StatusOK, summaryResponse{
		ElderID:            artifact.ElderID,
		Date:               artifact.Date,
		Summary:            artifact.Summary,
		PhysicalStatus:     artifact.PhysicalStatus,
		PsychologicalNeeds: artifact.PsychologicalNeeds,
		Advice:             artifact.Advice,
		GeneratedAt:        artifact.GeneratedAt.UTC().Format(time.RFC3339),
		SourceRecordIDs:    artifact.SourceRecordIDs,
		Message:            message,
	})
}
