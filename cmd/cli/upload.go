package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/statement-ingest/internal/gcsuploader"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
)

func runUpload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	common := addCommonFlags(fs)
	bucket := fs.String("bucket", "", "GCS bucket name (defaults to GCS_BUCKET)")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: cli upload [-bucket NAME] FILE ...")
	}

	cfg, log, err := common.load()
	if err != nil {
		return err
	}
	if *bucket == "" {
		*bucket = cfg.Bucket
	}
	if *bucket == "" {
		return fmt.Errorf("-bucket or GCS_BUCKET is required")
	}
	ctx = logger.WithContext(ctx, log)

	archiver, err := gcsuploader.NewArchiver(ctx, *bucket)
	if err != nil {
		return err
	}
	defer archiver.Close()

	for _, path := range fs.Args() {
		name := pipeline.DiskFile{Path: path}.Name()
		head, err := sniff(path)
		if err != nil {
			return err
		}

		object := pipeline.ArchiveObjectName(name, time.Now())
		log.Info().Str("bucket", *bucket).Str("object", object).Str("file", path).Msg("Uploading file to GCS")

		uri, err := archiver.UploadFile(ctx, object, path, pipeline.DetectFileType(name, head))
		if err != nil {
			return err
		}
		okc(" %-9s ", "ARCHIVED")
		fmt.Printf(" %s  %s\n", path, uri)
	}
	return nil
}

// sniff reads the first bytes of path for content type detection.
func sniff(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return buf[:n], nil
}
