package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/statement-ingest/internal/app"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/gcsuploader"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
	"github.com/dvloznov/statement-ingest/internal/summary"
)

func runParse(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	common := addCommonFlags(fs)
	workers := fs.Int("workers", 0, "Files parsed in parallel (defaults to WORKER_COUNT)")
	asJSON := fs.Bool("json", false, "Print results as JSON")
	verbose := fs.Bool("v", false, "List every transaction")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: cli parse [options] FILE|gs://URI ...")
	}

	cfg, log, err := common.load()
	if err != nil {
		return err
	}
	if *workers <= 0 {
		*workers = cfg.WorkerCount
	}

	var reader *gcsuploader.Archiver
	if needsGCS(fs.Args()) {
		a, closeFn, err := gcsReader(ctx, cfg.Bucket, fs.Args())
		if err != nil {
			return err
		}
		defer closeFn()
		reader = a
	}

	ingester := pipeline.NewIngester(app.IngesterOptions(log, cfg, nil)...)
	results, err := parseAll(ctx, ingester, sources(ctx, fs.Args(), reader), *workers)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	var all []domain.Transaction
	for _, res := range results {
		printResult(res, "", *verbose)
		all = append(all, res.Transactions...)
	}
	if len(results) > 1 {
		printSummary("All files", summary.Compute(all))
	} else if len(results) == 1 {
		printSummary(results[0].Filename, results[0].Summary)
	}
	return nil
}

// parseAll parses every source with at most workers in flight. Results keep
// the order of srcs.
func parseAll(ctx context.Context, ingester *pipeline.Ingester, srcs []pipeline.FileSource, workers int) ([]*pipeline.Result, error) {
	results := make([]*pipeline.Result, len(srcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range srcs {
		g.Go(func() error {
			res, err := ingester.Parse(gctx, src)
			if err != nil {
				return fmt.Errorf("%s: %w", src.Name(), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func sources(ctx context.Context, args []string, reader *gcsuploader.Archiver) []pipeline.FileSource {
	srcs := make([]pipeline.FileSource, len(args))
	for i, arg := range args {
		if gcsuploader.IsURI(arg) {
			srcs[i] = gcsuploader.ObjectSource{Ctx: ctx, Archiver: reader, URI: arg}
			continue
		}
		srcs[i] = pipeline.DiskFile{Path: arg}
	}
	return srcs
}

func needsGCS(args []string) bool {
	for _, a := range args {
		if gcsuploader.IsURI(a) {
			return true
		}
	}
	return false
}

// gcsReader opens a storage client for reading gs:// arguments. Without a
// configured bucket it uses the bucket of the first URI.
func gcsReader(ctx context.Context, bucket string, args []string) (*gcsuploader.Archiver, func() error, error) {
	if bucket == "" {
		for _, a := range args {
			if b, _, err := gcsuploader.ParseURI(a); err == nil {
				bucket = b
				break
			}
		}
	}
	a, err := gcsuploader.NewArchiver(ctx, bucket)
	if err != nil {
		return nil, nil, err
	}
	return a, a.Close, nil
}
