package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/auth"
	"github.com/snarg/listen-engine/internal/config"
	"github.com/snarg/listen-engine/internal/database"
	"github.com/snarg/listen-engine/internal/ingest"
	"github.com/snarg/listen-engine/internal/metrics"
	"github.com/snarg/listen-engine/internal/mqttclient"
	"github.com/snarg/listen-engine/internal/repo"
	"github.com/snarg/listen-engine/internal/storage"
	"github.com/snarg/listen-engine/internal/summarize"
	"github.com/snarg/listen-engine/internal/transcribe"
)

// Deps carries everything the HTTP layer needs. DB and MQTT may be nil
// (in-memory deployment, no broker).
type Deps struct {
	Config      *config.Config
	Resolver    *auth.Resolver
	Ingest      *ingest.Orchestrator
	Aggregator  *summarize.Aggregator
	Recordings  repo.RecordingRepo
	Transcripts repo.TranscriptRepo
	Store       storage.AudioStore
	Pool        *transcribe.WorkerPool
	DB          *database.DB
	MQTT        *mqttclient.Notifier
	Version     string
	StartTime   time.Time
	Log         zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(d Deps) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(d.Log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	// Unauthenticated: login, health, metrics
	NewLoginHandler(d.Resolver, d.Log).Routes(r)
	health := NewHealthHandler(d.DB, d.MQTT, d.Pool, d.Version, d.StartTime)
	r.Get("/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(TokenAuth(d.Resolver))
		NewUploadHandler(d.Ingest, d.Config.MaxUploadBytes, d.Log).Routes(r)
		NewRecordsHandler(d.Recordings, d.Transcripts, d.Store, d.Log).Routes(r)
		NewSummaryHandler(d.Aggregator, d.Log).Routes(r)
		NewSweepHandler(d.Pool, d.Log).Routes(r)
	})

	return &Server{
		http: &http.Server{
			Addr:         d.Config.HTTPAddr,
			Handler:      r,
			ReadTimeout:  d.Config.ReadTimeout,
			WriteTimeout: d.Config.WriteTimeout,
			IdleTimeout:  d.Config.IdleTimeout,
		},
		log: d.Log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
