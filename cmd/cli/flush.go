package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/dvloznov/statement-ingest/internal/cache"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/session"
)

func runFlush(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("flush", flag.ExitOnError)
	common := addCommonFlags(fs)
	remote := fs.Bool("remote", false, "Submit to the API at API_BASE_URL instead of the configured store")
	fs.Parse(args)

	cfg, log, err := common.load()
	if err != nil {
		return err
	}
	ctx = logger.WithContext(ctx, log)

	pending, err := cache.Open(cfg.CachePath)
	if err != nil {
		return err
	}
	defer pending.Close()

	uploads, err := pending.List()
	if err != nil {
		return err
	}
	if len(uploads) == 0 {
		fmt.Println("No cached uploads.")
		return nil
	}

	sink, closeSink, err := openSink(ctx, cfg, *remote, log)
	if err != nil {
		return err
	}
	defer closeSink()

	var failed int
	for _, u := range uploads {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := sink.SubmitStatement(ctx, u)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			printStatus(session.UploadStatusFailed)
			fmt.Printf(" %s  %v\n", u.Name, err)
			failed++
			continue
		}

		if err := pending.Delete(u.Name); err != nil {
			return err
		}
		if res.Duplicate {
			printStatus(session.UploadStatusDuplicate)
		} else {
			printStatus(session.UploadStatusUploaded)
		}
		fmt.Printf(" %s  %s\n", u.Name, res.Message)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d cached uploads are still pending", failed, len(uploads))
	}
	return nil
}
