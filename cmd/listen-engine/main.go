package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/api"
	"github.com/snarg/listen-engine/internal/auth"
	"github.com/snarg/listen-engine/internal/config"
	"github.com/snarg/listen-engine/internal/database"
	"github.com/snarg/listen-engine/internal/ingest"
	"github.com/snarg/listen-engine/internal/mqttclient"
	"github.com/snarg/listen-engine/internal/repo"
	"github.com/snarg/listen-engine/internal/storage"
	"github.com/snarg/listen-engine/internal/summarize"
	"github.com/snarg/listen-engine/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level")
	flag.StringVar(&overrides.DatabaseURL, "db", "", "Postgres connection URL")
	flag.StringVar(&overrides.AudioDir, "audio-dir", "", "local audio directory")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("listen-engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Repositories: Postgres when configured, in-memory otherwise.
	var (
		db          *database.DB
		accounts    repo.AccountRepo
		recordings  repo.RecordingRepo
		transcripts repo.TranscriptRepo
		summaries   repo.SummaryRepo
	)
	if cfg.DatabaseURL != "" {
		dbLog := log.With().Str("component", "database").Logger()
		db, err = database.Connect(ctx, cfg.DatabaseURL, database.PoolSettings{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		}, dbLog)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		if err := db.InitSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize schema")
		}
		accounts, recordings = db.Accounts(), db.Recordings()
		transcripts, summaries = db.Transcripts(), db.Summaries()
	} else {
		log.Warn().Msg("DATABASE_URL not set, using in-memory repositories")
		mem := repo.NewMemory()
		accounts, recordings = mem.Accounts(), mem.Recordings()
		transcripts, summaries = mem.Transcripts(), mem.Summaries()
	}

	// Audio store
	store, err := storage.New(cfg.S3, cfg.AudioDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audio store")
	}
	log.Info().Str("type", store.Type()).Msg("audio store ready")

	// Optional MQTT notifier
	var notifier *mqttclient.Notifier
	if cfg.MQTTBrokerURL != "" {
		notifier, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			TopicBase: cfg.MQTTTopicBase,
			Log:       log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer notifier.Close()
	}
	publish := func(eventType string, elderID int64, payload map[string]any) {
		if notifier != nil {
			notifier.Publish(eventType, elderID, payload)
		}
	}

	// Auth
	var verifier auth.CodeVerifier
	if cfg.LoginVerifyURL != "" {
		verifier = auth.NewHTTPVerifier(cfg.LoginVerifyURL)
	} else {
		log.Warn().Msg("LOGIN_VERIFY_URL not set, accepting any login code")
		verifier = auth.StaticVerifier{}
	}
	resolver := auth.NewResolver(accounts, verifier, cfg.TokenTTL, log)

	// Transcription worker pool
	if cfg.ASRBaseURL == "" {
		log.Warn().Msg("ASR_BASE_URL not set, transcription requests will fail until configured")
	}
	asr := transcribe.NewASRClient(
		cfg.ASRBaseURL+"/audio/transcriptions", cfg.ASRAPIKey, cfg.ASRModel, cfg.ASRTimeout)
	pool := transcribe.NewWorkerPool(transcribe.WorkerPoolOptions{
		Recordings:   recordings,
		Transcripts:  transcripts,
		Store:        store,
		Provider:     asr,
		Timeout:      cfg.ASRTimeout,
		Workers:      cfg.TranscribeWorkers,
		QueueSize:    cfg.TranscribeQueueSize,
		PublishEvent: publish,
		Log:          log,
	})

	// Recover recordings a previous process left mid-transcription.
	if n, err := recordings.ResetInFlight(ctx); err != nil {
		log.Error().Err(err).Msg("failed to reset in-flight recordings")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("reset in-flight recordings from previous run")
	}

	pool.Start()
	go pool.RunSweeper(ctx, cfg.RetryInterval)
	if _, err := pool.Sweep(ctx); err != nil {
		log.Warn().Err(err).Msg("startup sweep failed")
	}

	// Summary aggregator
	aggregator := summarize.NewAggregator(summarize.AggregatorOptions{
		Transcripts:  transcripts,
		Summaries:    summaries,
		Summarizer:   summarize.NewLLMClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout),
		PublishEvent: publish,
		Log:          log,
	})

	// Ingestion orchestrator
	orchestrator := ingest.NewOrchestrator(ingest.OrchestratorOptions{
		Recordings:  recordings,
		Store:       store,
		Enqueue:     pool.Enqueue,
		AllowedExts: cfg.AllowedExtensions(),
		MaxBytes:    cfg.MaxUploadBytes,
		Log:         log,
	})

	// HTTP server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.Deps{
		Config:      cfg,
		Resolver:    resolver,
		Ingest:      orchestrator,
		Aggregator:  aggregator,
		Recordings:  recordings,
		Transcripts: transcripts,
		Store:       store,
		Pool:        pool,
		DB:          db,
		MQTT:        notifier,
		Version:     version,
		StartTime:   startTime,
		Log:         httpLog,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Stop accepting requests, then drain the worker queue.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	pool.Stop()

	log.Info().Msg("listen-engine stopped")
}
