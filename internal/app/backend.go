// Package app builds the collaborators shared by the API server and the CLI
// from a Config.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/gcsuploader"
	bqinfra "github.com/dvloznov/statement-ingest/internal/infra/bigquery"
	fsinfra "github.com/dvloznov/statement-ingest/internal/infra/firestore"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
	"github.com/dvloznov/statement-ingest/internal/statements"
)

// Closer releases a backend client.
type Closer func() error

func noop() error { return nil }

// OpenRepository returns the statement repository selected by
// cfg.StoreBackend.
func OpenRepository(ctx context.Context, cfg *config.Config) (statements.Repository, Closer, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory, "":
		return statements.NewMemoryRepository(), noop, nil
	case config.BackendFirestore:
		repo, err := fsinfra.NewRepository(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return repo, repo.Close, nil
	case config.BackendBigQuery:
		repo, err := bqinfra.NewRepository(ctx, cfg.ProjectID, cfg.Dataset)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("OpenRepository: unknown store backend %q", cfg.StoreBackend)
	}
}

// OpenArchiver returns a GCS archiver, or nil when no bucket is configured.
func OpenArchiver(ctx context.Context, cfg *config.Config) (*gcsuploader.Archiver, Closer, error) {
	if cfg.Bucket == "" {
		return nil, noop, nil
	}
	a, err := gcsuploader.NewArchiver(ctx, cfg.Bucket)
	if err != nil {
		return nil, nil, err
	}
	return a, a.Close, nil
}

// AIParser returns the Gemini parser, or nil without an API key.
func AIParser(cfg *config.Config) pipeline.AIParser {
	if cfg.GeminiAPIKey == "" {
		return nil
	}
	return pipeline.NewGeminiAIParser(cfg.GeminiAPIKey, cfg.GeminiModel)
}

// IngesterOptions collects the optional pipeline collaborators that are set.
// Interface values holding nil pointers are skipped.
func IngesterOptions(log zerolog.Logger, cfg *config.Config, archiver *gcsuploader.Archiver) []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithUserID(cfg.UserID),
	}
	if ai := AIParser(cfg); ai != nil {
		opts = append(opts, pipeline.WithAIParser(ai))
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set - PDF and image statements will yield no transactions")
	}
	if archiver != nil {
		opts = append(opts, pipeline.WithArchiver(archiver))
	}
	return opts
}
