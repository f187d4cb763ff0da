package main

import (
	"context"
	"flag"
	"fmt"

	bqinfra "github.com/dvloznov/statement-ingest/internal/infra/bigquery"
)

func runMigrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	common := addCommonFlags(fs)
	fs.Parse(args)

	cfg, log, err := common.load()
	if err != nil {
		return err
	}
	if cfg.ProjectID == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required")
	}

	applied, err := bqinfra.Migrate(ctx, cfg.ProjectID, cfg.Dataset, "cli", bqinfra.EmbeddedMigrations(), log)
	if err != nil {
		return err
	}
	fmt.Printf("Applied %d migration(s) to %s.%s\n", applied, cfg.ProjectID, cfg.Dataset)
	return nil
}
