package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/ashirbekov/txinsights/internal/config"
	"github.com/ashirbekov/txinsights/internal/domain"
	"github.com/ashirbekov/txinsights/internal/logger"
	"github.com/ashirbekov/txinsights/internal/sink"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		checkOnly  = flag.Bool("check", false, "verify the schema exists without creating it")
	)
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	db, err := sink.Open(ctx, cfg.ToSinkConfig())
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Sink.Driver).Msg("Failed to open sink")
	}
	defer db.Close()

	if !*checkOnly {
		ens, ok := db.(sink.SchemaEnsurer)
		if !ok {
			log.Fatal().Str("driver", cfg.Sink.Driver).Msg("Sink does not manage its own schema")
		}
		if err := ens.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure transaction schema")
		}
		log.Info().Str("driver", cfg.Sink.Driver).Msg("Schema ensured")
	}

	rows, err := countRows(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Transaction table is not queryable")
	}

	fmt.Printf("Transaction table ready: %d rows (%s)\n", rows, cfg.Sink.Driver)
}

// countRows proves the transaction table exists and is queryable. Drivers
// disagree on the Go type COUNT comes back as.
func countRows(ctx context.Context, db sink.Sink) (int64, error) {
	res, err := db.Query(ctx, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", domain.TableName), 1)
	if err != nil {
		return 0, err
	}
	if res.Empty() {
		return 0, fmt.Errorf("count query returned no rows")
	}

	switch v := res.Rows[0]["n"].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}
