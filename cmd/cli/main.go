package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashirbekov/txinsights/internal/config"
	"github.com/ashirbekov/txinsights/internal/ingest"
	"github.com/ashirbekov/txinsights/internal/llm"
	"github.com/ashirbekov/txinsights/internal/logger"
	"github.com/ashirbekov/txinsights/internal/query"
	"github.com/ashirbekov/txinsights/internal/sink"
	"github.com/ashirbekov/txinsights/internal/source"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "load":
		runLoad(log)
	case "ask":
		runAsk(log)
	case "query":
		runQuery(log)
	case "schema":
		runSchema(log)
	case "put":
		runPut(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Transaction Insights CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  load      Load a parquet file of transactions into the sink")
	fmt.Println("  ask       Answer a natural-language question about the data")
	fmt.Println("  query     Run a read-only SQL statement against the sink")
	fmt.Println("  schema    Show the transaction table layout")
	fmt.Println("  put       Upload a local parquet file to GCS")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func loadConfig(log zerolog.Logger, path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	return cfg
}

func openSink(ctx context.Context, log zerolog.Logger, cfg *config.Config) sink.Sink {
	db, err := sink.Open(ctx, cfg.ToSinkConfig())
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Sink.Driver).Msg("Failed to open sink")
	}
	return db
}

func runLoad(log zerolog.Logger) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	file := fs.String("file", "", "parquet file to load (local path or gs:// URI)")
	batchSize := fs.Int("batch-size", 0, "rows per batch (defaults to the configured size)")
	abort := fs.Bool("abort-on-error", false, "stop at the first failed batch")
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(os.Args[2:])

	if *file == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	cfg := loadConfig(log, *configPath)
	if *batchSize <= 0 {
		*batchSize = cfg.Load.BatchSize
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	db := openSink(ctx, log, cfg)
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
		Msg("Starting load")

	opts := []ingest.LoaderOption{ingest.WithProgress(printProgress)}
	if *abort {
		opts = append(opts, ingest.AbortOnFirstError())
	}

	report, err := ingest.NewLoader(db, opts...).Load(ctx, reader)
	fmt.Println()
	if err != nil {
		log.Fatal().Err(err).Int64("rows_loaded", report.RowsLoaded).Msg("Load failed")
	}

	fmt.Printf("Loaded %d rows in %d batches (%s)\n",
		report.RowsLoaded, report.BatchesCommitted, report.Duration.Round(time.Millisecond))
	if report.RowsSkipped > 0 {
		fmt.Printf("Skipped %d rows with unparsable required columns\n", report.RowsSkipped)
	}
	if report.NullsCoerced > 0 {
		fmt.Printf("Stored %d unparsable optional values as NULL\n", report.NullsCoerced)
	}
	for _, be := range report.FailedBatches {
		fmt.Printf("Batch %d (%d rows at offset %d) failed: %v\n", be.Index, be.Rows, be.Offset, be.Err)
	}
	if n := report.BatchesFailed(); n > 0 {
		os.Exit(1)
	}
}

func printProgress(p ingest.Progress) {
	pct := 0.0
	if p.RowsTotal > 0 {
		pct = float64(p.RowsLoaded) / float64(p.RowsTotal) * 100
	}
	fmt.Printf("\rLoaded: %d/%d (%.1f%%) | Rate: %.0f rows/sec | ETA: %s   ",
		p.RowsLoaded, p.RowsTotal, pct, p.RowsPerSecond, p.ETA.Round(time.Second))
}

func runAsk(log zerolog.Logger) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(os.Args[2:])

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		log.Fatal().Msg(`Usage: cli ask [-config PATH] "question about the data"`)
	}

	cfg := loadConfig(log, *configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	db := openSink(ctx, log, cfg)
	defer db.Close()

	model, err := llm.NewGemini(ctx, cfg.ToGeminiConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	pipeline := query.New(model, db,
		query.WithLogger(log),
		query.WithDisplayLimit(cfg.Query.DisplayLimit),
	)

	out, err := pipeline.Ask(ctx, question)
	if err != nil {
		var rejected *query.RejectedError
		if errors.As(err, &rejected) {
			log.Fatal().Str("reason", rejected.Reason).Msg("Question rejected")
		}
		log.Fatal().Err(err).Msg("Query failed")
	}

	fmt.Printf("\nSQL: %s\n", out.Verdict.SQL)
	if out.Verdict.Rewritten {
		fmt.Println("(text predicates rewritten to match case-insensitively)")
	}
	fmt.Println()
	renderResult(os.Stdout, out.Result)
	if out.Analysis != "" {
		fmt.Printf("\n%s\n", out.Analysis)
	}
	if out.SummaryErr != nil {
		fmt.Println("\nAnalysis unavailable; showing raw results only.")
	}
}

func runQuery(log zerolog.Logger) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	limit := fs.Int("limit", 0, "max rows to display (defaults to the configured limit)")
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(os.Args[2:])

	stmt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if stmt == "" {
		log.Fatal().Msg(`Usage: cli query [-limit N] "SELECT ..."`)
	}

	cfg := loadConfig(log, *configPath)
	if *limit <= 0 {
		*limit = cfg.Query.DisplayLimit
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	db := openSink(ctx, log, cfg)
	defer db.Close()

	verdict, err := query.Validate(stmt)
	if err != nil {
		log.Fatal().Err(err).Msg("Statement rejected")
	}
	if verdict.Rewritten {
		fmt.Printf("Rewritten: %s\n\n", verdict.SQL)
	}

	result, err := query.NewExecutor(db, *limit).Execute(ctx, verdict.SQL)
	if err != nil {
		log.Fatal().Err(err).Msg("Query failed")
	}

	renderResult(os.Stdout, result)
}

func runSchema(log zerolog.Logger) {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	renderSchema(os.Stdout)
}

func runPut(log zerolog.Logger) {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	file := fs.String("file", "", "Path to local parquet file")
	dest := fs.String("dest", "", "Destination gs://bucket/object (trailing / keeps the filename)")
	fs.Parse(os.Args[2:])

	if *file == "" || *dest == "" {
		log.Fatal().Msg("Usage: cli put -file PATH -dest gs://bucket/prefix/")
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	log.Info().Str("file", *file).Str("dest", *dest).Msg("Uploading parquet to GCS")

	uri, err := source.UploadURI(ctx, *file, *dest)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *file, uri)
}
