package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/astrodata/apod-pipeline/internal/config"
	"github.com/astrodata/apod-pipeline/internal/dataset"
	"github.com/astrodata/apod-pipeline/internal/models"
	"github.com/astrodata/apod-pipeline/internal/normalize"
	"github.com/astrodata/apod-pipeline/internal/pipeline"
	"github.com/astrodata/apod-pipeline/internal/publish"
	"github.com/astrodata/apod-pipeline/internal/server"
	"github.com/astrodata/apod-pipeline/internal/source"
	"github.com/astrodata/apod-pipeline/internal/storage"
	"github.com/astrodata/apod-pipeline/internal/util"
	"github.com/astrodata/apod-pipeline/internal/version"
)

func main() {
	var (
		configPath = flag.String("config", "", "optional YAML config file, overridden by environment")
		runDate    = flag.String("date", "", "run once for this logical date (YYYY-MM-DD) and exit")
		once       = flag.Bool("once", false, "run once for today and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	store, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}
	defer store.Close()

	ds := dataset.New(cfg.Dataset.Path())
	fetcher := source.NewChain(
		source.NewAPODSource(cfg.API),
		source.NewHistorySource(ds),
		source.NewPlaceholderSource(),
	)
	versioner := version.Detect(context.Background(), util.ExecRunner{})
	publisher := publish.New(cfg.Dataset.Dir, cfg.Git)

	pipe := pipeline.New(fetcher, normalize.New(), store, ds, versioner, publisher)

	// One-shot mode: the external scheduler supplies the trigger and the
	// logical date; we run one stage chain and report through the exit code.
	if *runDate != "" || *once {
		date := *runDate
		if date == "" {
			date = time.Now().UTC().Format(models.DateLayout)
		}
		if _, err := time.Parse(models.DateLayout, date); err != nil {
			log.Fatal("Invalid -date, want YYYY-MM-DD:", err)
		}
		report, err := pipe.Run(context.Background(), date)
		for _, w := range report.Warnings {
			log.Printf("warning: %s", w)
		}
		if err != nil {
			os.Exit(1)
		}
		return
	}

	// Service mode: interval trigger plus the read-only HTTP API.
	svc := pipeline.NewService(pipe, cfg.Run.Interval)
	httpServer := server.NewServer(cfg.Server, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.Server.Port)
		if err := httpServer.Start(); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	go func() {
		log.Println("Starting APOD pipeline service")
		if err := svc.Start(ctx); err != nil {
			log.Printf("Pipeline service error: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	cancel()
	log.Println("Shutdown complete")
}
