package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/statement-ingest/internal/api/handlers"
	"github.com/dvloznov/statement-ingest/internal/api/middleware"
	"github.com/dvloznov/statement-ingest/internal/app"
	"github.com/dvloznov/statement-ingest/internal/cache"
	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
	"github.com/dvloznov/statement-ingest/internal/session"
	"github.com/dvloznov/statement-ingest/internal/statements"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("CONFIG_FILE"), "Optional YAML config file")
		port       = flag.String("port", "", "HTTP server port (overrides PORT)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := context.Background()

	repo, closeRepo, err := app.OpenRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open statement repository")
	}
	defer closeRepo()
	log.Info().Str("backend", cfg.StoreBackend).Msg("Statement repository ready")

	archiver, closeArchiver, err := app.OpenArchiver(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GCS archiver")
	}
	defer closeArchiver()
	if archiver == nil {
		log.Warn().Msg("No GCS bucket configured - raw statements will not be archived")
	}

	pending, err := cache.Open(cfg.CachePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open pending upload cache")
	}
	defer pending.Close()

	svc := statements.NewService(repo, statements.WithLogger(log))
	sess := session.NewStore()

	opts := append(app.IngesterOptions(log, cfg, archiver),
		pipeline.WithSession(sess),
		pipeline.WithSink(svc),
		pipeline.WithPendingCache(pending),
	)
	ingester := pipeline.NewIngester(opts...)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.QueueSize, jobStore,
		inmemory.WithWorkers(cfg.WorkerCount),
		inmemory.WithMaxRetries(cfg.MaxRetries),
		inmemory.WithQueueLogger(log),
	)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.WorkerCount).Msg("Starting job workers")
	if err := jobQueue.Start(workerCtx, jobs.NewIngestHandler(ingester, sess)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	routes := handlers.Routes{
		Statements: handlers.NewStatementsHandler(svc),
		Ingest:     handlers.NewIngestHandler(jobQueue),
		Jobs:       handlers.NewJobsHandler(jobStore, jobQueue, sess),
		Session:    handlers.NewSessionHandler(sess),
	}

	handler := middleware.Chain(routes.Mux(),
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS(cfg.CORSOrigins),
		middleware.User(cfg.UserID),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop cancels in-flight jobs and waits for the workers.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
