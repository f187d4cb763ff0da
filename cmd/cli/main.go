package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

var commands = []command{
	{"parse", "Parse statements and print their summaries", runParse},
	{"ingest", "Parse statements and store them in the backend", runIngest},
	{"upload", "Archive raw statement files to GCS", runUpload},
	{"flush", "Re-submit uploads parked in the local cache", runFlush},
	{"migrate", "Apply BigQuery schema migrations", runMigrate},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(ctx, os.Args[2:]); err != nil {
			errc("%s: %v", name, err)
			fmt.Println()
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
	printUsage()
	os.Exit(1)
}

func printUsage() {
	fmt.Println("Statement Ingest CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options] [files...]")
	fmt.Println("\nCommands:")
	for _, c := range commands {
		fmt.Printf("  %-9s %s\n", c.name, c.usage)
	}
	fmt.Printf("  %-9s %s\n", "help", "Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// commonFlags registers the flags every subcommand accepts.
type commonFlags struct {
	configPath *string
	logLevel   *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", os.Getenv("CONFIG_FILE"), "Optional YAML config file"),
		logLevel:   fs.String("log-level", "", "Log level (overrides LOG_LEVEL)"),
	}
}

// load reads the configuration and builds the logger.
func (c commonFlags) load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(*c.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if *c.logLevel != "" {
		cfg.LogLevel = *c.logLevel
	}
	return cfg, logger.NewWithLevel(cfg.LogLevel), nil
}
