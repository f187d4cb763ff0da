package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/dvloznov/statement-ingest/internal/config"
	bqinfra "github.com/dvloznov/statement-ingest/internal/infra/bigquery"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

var (
	configPath    = flag.String("config", os.Getenv("CONFIG_FILE"), "Optional YAML config file")
	projectID     = flag.String("project", "", "GCP project ID (defaults to GOOGLE_CLOUD_PROJECT)")
	datasetID     = flag.String("dataset", "", "BigQuery dataset ID (defaults to BQ_DATASET)")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "", "Directory of migrations (defaults to the embedded set)")
	dryRun        = flag.Bool("dry-run", false, "List migrations without applying them")
)

func main() {
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *projectID == "" {
		*projectID = cfg.ProjectID
	}
	if *datasetID == "" {
		*datasetID = cfg.Dataset
	}
	if *projectID == "" {
		log.Fatal().Msg("Error: -project flag or GOOGLE_CLOUD_PROJECT is required")
	}

	var fsys fs.FS = bqinfra.EmbeddedMigrations()
	if *migrationsDir != "" {
		fsys = os.DirFS(*migrationsDir)
	}

	if *dryRun {
		migrations, err := bqinfra.ReadMigrations(fsys, *projectID, *datasetID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read migrations")
		}
		for _, m := range migrations {
			fmt.Printf("%04d  %-40s %s\n", m.Version, m.Name, m.Checksum[:12])
		}
		return
	}

	ctx := logger.WithContext(context.Background(), log)
	applied, err := bqinfra.Migrate(ctx, *projectID, *datasetID, *appliedBy, fsys, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	if applied == 0 {
		fmt.Println("Database is up to date. No migrations to apply.")
		return
	}
	fmt.Printf("Successfully applied %d migration(s).\n", applied)
}
