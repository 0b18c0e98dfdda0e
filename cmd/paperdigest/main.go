package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"PaperDigest/internal/app"
	"PaperDigest/internal/config"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/usecase"
	"PaperDigest/pkg/logger"
)

func main() {
	startup := logger.New("paperdigest")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		startup.Printf("dotenv: %v", err)
	}

	command := "run-once"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command = args[0]
		args = args[1:]
	}

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	daysBack := flags.Int("days-back", 1, "how many days of submissions to fetch")
	topN := flags.Int("top-n", 0, "papers per digest (0 uses config)")
	batchSize := flags.Int("batch-size", 0, "concurrent enrichment batch size (0 uses config)")
	includeAll := flags.Bool("include-all", false, "process papers already seen in earlier runs")
	noEmail := flags.Bool("no-email", false, "skip email delivery, only write artifacts")
	htmlOut := flags.String("html-out", "", "explicit path for the HTML digest")
	if err := flags.Parse(args); err != nil {
		startup.Fatalf("parse flags: %v", err)
	}

	cfg := config.Load()
	if *batchSize > 0 {
		cfg.Enrich.BatchSize = *batchSize
	}
	log := logging.New(cfg.Logging.Level)

	opts := usecase.RunOptions{
		DaysBack:  *daysBack,
		TopN:      *topN,
		OnlyNew:   !*includeAll,
		SendEmail: !*noEmail,
		HTMLOut:   *htmlOut,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}

	switch command {
	case "run-once":
		err = application.RunOnce(ctx, opts)
	case "schedule":
		err = application.Schedule(ctx, opts)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected run-once or schedule)\n", command)
		os.Exit(2)
	}

	if err != nil {
		log.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
