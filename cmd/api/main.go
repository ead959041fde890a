package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashirbekov/txinsights/internal/api/handlers"
	"github.com/ashirbekov/txinsights/internal/api/middleware"
	"github.com/ashirbekov/txinsights/internal/config"
	"github.com/ashirbekov/txinsights/internal/jobs"
	"github.com/ashirbekov/txinsights/internal/jobs/inmemory"
	"github.com/ashirbekov/txinsights/internal/llm"
	"github.com/ashirbekov/txinsights/internal/logger"
	"github.com/ashirbekov/txinsights/internal/query"
	"github.com/ashirbekov/txinsights/internal/sink"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", "", "path to config file (default: txinsights.yaml in the working directory)")
		addr       = flag.String("addr", "", "listen address, overrides the config file")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = logger.NewAtLevel(cfg.Log.Level)

	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if cfg.Gemini.APIKey == "" {
		log.Warn().Msg("No Gemini API key configured - natural-language queries will fail")
	}

	ctx := context.Background()

	// Open the transaction sink
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

	model, err := llm.NewGemini(ctx, cfg.ToGeminiConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	pipeline := query.New(model, db,
		query.WithLogger(log),
		query.WithDisplayLimit(cfg.Query.DisplayLimit),
	)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, cfg.Load.Workers, jobStore)
	runner := jobs.NewLoadRunner(db, jobStore, cfg.Load.BatchSize, log)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Int("workers", cfg.Load.Workers).Msg("Starting load workers")
		if err := jobQueue.Start(workerCtx, runner.Handle); err != nil {
			log.Error().Err(err).Msg("Load workers stopped with error")
		}
	}()

	// Initialize handlers
	queryHandler := handlers.NewQueryHandler(pipeline, log)
	loadsHandler := handlers.NewLoadsHandler(jobQueue, jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Query endpoint
	mux.HandleFunc("/api/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			queryHandler.Ask(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Loads endpoints
	mux.HandleFunc("/api/loads", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			loadsHandler.EnqueueLoad(w, r)
		case http.MethodGet:
			loadsHandler.ListLoads(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/loads/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/loads/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			loadsHandler.GetLoad(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("sink", cfg.Sink.Driver).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel worker context
	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight loads
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
