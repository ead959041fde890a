package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/ashirbekov/txinsights/internal/config"
	"github.com/ashirbekov/txinsights/internal/ingest"
	"github.com/ashirbekov/txinsights/internal/logger"
	"github.com/ashirbekov/txinsights/internal/sink"
	"github.com/ashirbekov/txinsights/internal/source"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	file := flag.String("file", "", "parquet file to load (local path or gs:// URI)")
	batchSize := flag.Int("batch-size", 0, "rows per batch (defaults to the configured size)")
	abort := flag.Bool("abort-on-error", false, "stop at the first failed batch")
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if *file == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *batchSize <= 0 {
		*batchSize = cfg.Load.BatchSize
	}

	// No deadline: load time is governed by the file, and batches keep
	// committing as long as rows keep coming.
	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	db, err := sink.Open(ctx, cfg.ToSinkConfig())
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Sink.Driver).Msg("Failed to open sink")
	}
	defer db.Close()

	if ens, ok := db.(sink.SchemaEnsurer); ok {
		if err := ens.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure transaction schema")
		}
	}

	src, err := source.Resolve(ctx, *file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve source")
	}
	defer src.Close()

	reader, err := ingest.NewReader(src.Path, ingest.WithBatchSize(*batchSize))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open parquet file")
	}
	defer reader.Close()

	log.Info().
		Str("file", *file).
		Int64("rows", reader.TotalRows()).
		Int("batch_size", *batchSize).
		Str("driver", cfg.Sink.Driver).
		Msg("Starting load")

	opts := []ingest.LoaderOption{
		ingest.WithProgress(func(p ingest.Progress) {
			log.Info().
				Int64("rows_loaded", p.RowsLoaded).
				Int64("rows_total", p.RowsTotal).
				Int("batches", p.BatchesCommitted).
				Float64("rows_per_sec", p.RowsPerSecond).
				Dur("eta", p.ETA).
				Msg("Load progress")
		}),
	}
	if *abort {
		opts = append(opts, ingest.AbortOnFirstError())
	}

	report, err := ingest.NewLoader(db, opts...).Load(ctx, reader)
	if err != nil {
		log.Fatal().Err(err).Int64("rows_loaded", report.RowsLoaded).Msg("Load failed")
	}
	if n := report.BatchesFailed(); n > 0 {
		log.Fatal().
			Int("failed_batches", n).
			Int64("rows_loaded", report.RowsLoaded).
			Msg("Load finished with failed batches")
	}

	fmt.Printf("Loaded %d rows in %d batches (%s)\n",
		report.RowsLoaded, report.BatchesCommitted, report.Duration.Round(time.Millisecond))
}
