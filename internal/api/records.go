package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/repo"
	"github.com/snarg/listen-engine/internal/storage"
)

// RecordsHandler lists an elder's recordings and serves per-record
// audio and transcript text.
type RecordsHandler struct {
	recordings  repo.RecordingRepo
	transcripts repo.TranscriptRepo
	store       storage.AudioStore
	log         zerolog.Logger
}

// NewRecordsHandler creates a records handler.
func NewRecordsHandler(recordings repo.RecordingRepo, transcripts repo.TranscriptRepo, store storage.AudioStore, log zerolog.Logger) *RecordsHandler {
	return &RecordsHandler{
		recordings:  recordings,
		transcripts: transcripts,
		store:       store,
		log:         log.With().Str("handler", "records").Logger(),
	}
}

// Routes registers the records endpoints.
func (h *RecordsHandler) Routes(r chi.Router) {
	r.Get("/listen/records", h.List)
	r.Get("/listen/records/{recordID}/audio", h.Audio)
	r.Get("/listen/records/{recordID}/text", h.Text)
}

type recordItem struct {
	RecordID   string `json:"record_id"`
	CapturedAt string `json:"captured_at"`
	Status     string `json:"status"`
	SizeBytes  int64  `json:"size_bytes"`
	LastError  string `json:"last_error,omitempty"`
}

type recordsResponse struct {
	ElderID int64        `json:"elder_id"`
	Total   int          `json:"total"`
	Records []recordItem `json:"records"`
}

// List handles GET /listen/records?elder_id&limit&offset, newest first.
// Elder tokens always list their own recordings.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	acc, ok := AccountFrom(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	elderID := acc.ID
	if acc.Role != repo.RoleElder {
		id, ok := QueryInt64(r, "elder_id")
		if !ok {
			WriteError(w, http.StatusBadRequest, "elder_id is required")
			return
		}
		elderID = id
	}

	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, total, err := h.recordings.ListByElder(r.Context(), elderID, p.Limit, p.Offset)
	if err != nil {
		h.log.Error().Err(err).Int64("elder_id", elderID).Msg("list recordings failed")
		WriteError(w, http.StatusInternalServerError, "failed to list recordings")
		return
	}

	items := make([]recordItem, len(recs))
	for i, rec := range recs {
		items[i] = recordItem{
			RecordID:   rec.ID,
			CapturedAt: rec.CapturedAt.UTC().Format(time.RFC3339),
			Status:     string(rec.Status),
			SizeBytes:  rec.SizeBytes,
			LastError:  rec.LastError,
		}
	}

	WriteJSON(w, http.StatusOK, recordsResponse{
		ElderID: elderID,
		Total:   total,
		Records: items,
	})
}

// loadRecord fetches the addressed recording and checks access. Elders
// only reach their own recordings; an unowned record answers 404 so
// record IDs do not leak across accounts. Writes the error response
// itself when returning ok=false.
func (h *RecordsHandler) loadRecord(w http.ResponseWriter, r *http.Request) (*repo.Recording, bool) {
	acc, ok := AccountFrom(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	rec, err := h.recordings.Get(r.Context(), chi.URLParam(r, "recordID"))
	if errors.Is(err, repo.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "record not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Msg("load recording failed")
		WriteError(w, http.StatusInternalServerError, "failed to load record")
		return nil, false
	}
	if acc.Role == repo.RoleElder && rec.ElderID != acc.ID {
		WriteError(w, http.StatusNotFound, "record not found")
		return nil, false
	}
	return rec, true
}

// Audio handles GET /listen/records/{recordID}/audio. An S3 backend
// answers with a redirect to a short-lived presigned URL; the local
// backend streams the file directly.
func (h *RecordsHandler) Audio(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadRecord(w, r)
	if !ok {
		return
	}

	u, err := h.store.URL(r.Context(), rec.AudioKey)
	if err != nil {
		h.log.Error().Err(err).Str("record_id", rec.ID).Msg("presign failed")
		WriteError(w, http.StatusInternalServerError, "failed to serve audio")
		return
	}
	if u != "" {
		// Presigning does not touch the object, so check it is still
		// there before sending the client away.
		if !h.store.Exists(r.Context(), rec.AudioKey) {
			WriteError(w, http.StatusNotFound, "audio not found")
			return
		}
		http.Redirect(w, r, u, http.StatusFound)
		return
	}

	f, err := h.store.Open(r.Context(), rec.AudioKey)
	if errors.Is(err, storage.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "audio not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("record_id", rec.ID).Msg("open audio failed")
		WriteError(w, http.StatusInternalServerError, "failed to serve audio")
		return
	}
	defer f.Close()

	ct := rec.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	io.Copy(w, f)
}

type recordTextResponse struct {
	ElderID  int64  `json:"elder_id"`
	RecordID string `json:"record_id"`
	Text     string `json:"text"`
	Status   string `json:"status"`
	Found    bool   `json:"found"`
}

// Text handles GET /listen/records/{recordID}/text. A recording that
// has no transcript yet answers found=false with its current status so
// the client knows whether to poll again.
func (h *RecordsHandler) Text(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadRecord(w, r)
	if !ok {
		return
	}

	resp := recordTextResponse{
		ElderID:  rec.ElderID,
		RecordID: rec.ID,
		Status:   string(rec.Status),
	}
	tr, err := h.transcripts.Get(r.Context(), rec.ID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
	case err != nil:
		h.log.Error().Err(err).Str("record_id", rec.ID).Msg("load transcript failed")
		WriteError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	default:
		resp.Text = tr.Text
		resp.Found = true
	}
	WriteJSON(w, http.StatusOK, resp)
}
