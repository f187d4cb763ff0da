package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/app"
	"github.com/dvloznov/statement-ingest/internal/cache"
	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/gcsuploader"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
	"github.com/dvloznov/statement-ingest/internal/session"
	"github.com/dvloznov/statement-ingest/internal/statements"
	"github.com/dvloznov/statement-ingest/internal/uploader"
)

func runIngest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	common := addCommonFlags(fs)
	remote := fs.Bool("remote", false, "Submit to the API at API_BASE_URL instead of the configured store")
	user := fs.String("user", "", "User id (defaults to DEFAULT_USER_ID)")
	workers := fs.Int("workers", 0, "Files ingested in parallel (defaults to WORKER_COUNT)")
	verbose := fs.Bool("v", false, "List every transaction")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: cli ingest [options] FILE|gs://URI ...")
	}

	cfg, log, err := common.load()
	if err != nil {
		return err
	}
	if *user != "" {
		cfg.UserID = *user
	}
	if *workers > 0 {
		cfg.WorkerCount = *workers
	}
	ctx = logger.WithContext(ctx, log)

	sink, closeSink, err := openSink(ctx, cfg, *remote, log)
	if err != nil {
		return err
	}
	defer closeSink()

	pending, err := cache.Open(cfg.CachePath)
	if err != nil {
		return err
	}
	defer pending.Close()

	archiver, closeArchiver, err := app.OpenArchiver(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeArchiver()

	sess := session.NewStore()
	opts := append(app.IngesterOptions(log, cfg, archiver),
		pipeline.WithSession(sess),
		pipeline.WithSink(sink),
		pipeline.WithPendingCache(pending),
	)
	ingester := pipeline.NewIngester(opts...)

	queue := inmemory.NewQueue(fs.NArg(), inmemory.NewStore(),
		inmemory.WithWorkers(cfg.WorkerCount),
		inmemory.WithMaxRetries(cfg.MaxRetries),
		inmemory.WithQueueLogger(log),
	)
	if err := queue.Start(ctx, jobs.NewIngestHandler(ingester, sess)); err != nil {
		return err
	}
	defer queue.Close()

	// Interrupting the CLI cancels queued and running files alike.
	stopQueue := context.AfterFunc(ctx, func() { queue.Stop(context.Background()) })
	defer stopQueue()

	queued, err := enqueueFiles(ctx, queue, cfg, fs.Args(), archiver)
	if err != nil {
		return err
	}

	var failed int
	for _, job := range queued {
		final, err := queue.Wait(context.Background(), job.JobID)
		if err != nil {
			return err
		}
		if final.Result == nil {
			printStatus(session.UploadStatusCancelled)
			fmt.Printf(" %s  %s\n", final.Filename, final.Error)
			failed++
			continue
		}
		status := jobs.UploadStatusFor(final, final.Result, jobError(final))
		if status.Status == session.UploadStatusCancelled {
			failed++
		}
		printResult(final.Result, status.Status, *verbose)
	}

	printSummary("Session", sess.Summary())

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files were not ingested", failed, len(queued))
	}
	return nil
}

// jobError restores the cancellation that ended a job, if any.
func jobError(job *jobs.IngestJob) error {
	if job.Status == jobs.JobStatusCancelled {
		return context.Canceled
	}
	return nil
}

// enqueueFiles publishes one job per argument. gs:// objects are downloaded
// first so that the job carries their bytes.
func enqueueFiles(ctx context.Context, queue *inmemory.Queue, cfg *config.Config, args []string, archiver *gcsuploader.Archiver) ([]*jobs.IngestJob, error) {
	reader := archiver
	if reader == nil && needsGCS(args) {
		a, closeFn, err := gcsReader(ctx, cfg.Bucket, args)
		if err != nil {
			return nil, err
		}
		defer closeFn()
		reader = a
	}

	queued := make([]*jobs.IngestJob, 0, len(args))
	for _, arg := range args {
		job := &jobs.IngestJob{UserID: cfg.UserID}
		if gcsuploader.IsURI(arg) {
			data, err := reader.Fetch(ctx, arg)
			if err != nil {
				return nil, err
			}
			job.Filename = gcsuploader.FilenameFromURI(arg)
			job.Payload = data
		} else {
			job.Filename = pipeline.DiskFile{Path: arg}.Name()
			job.Path = arg
		}

		if err := queue.PublishIngest(ctx, job); err != nil {
			return nil, fmt.Errorf("queueing %s: %w", arg, err)
		}
		queued = append(queued, job)
	}
	return queued, nil
}

// openSink returns the remote API client or a service over the configured
// repository.
func openSink(ctx context.Context, cfg *config.Config, remote bool, log zerolog.Logger) (pipeline.StatementSink, func() error, error) {
	if remote {
		log.Info().Str("api", cfg.APIBaseURL).Msg("Submitting statements to the API")
		return uploader.New(cfg.APIBaseURL, uploader.WithUserID(cfg.UserID)), func() error { return nil }, nil
	}

	repo, closeRepo, err := app.OpenRepository(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.StoreBackend == config.BackendMemory {
		log.Warn().Msg("Using the in-memory store; statements are discarded on exit")
	}
	return statements.NewService(repo, statements.WithLogger(log)), closeRepo, nil
}
