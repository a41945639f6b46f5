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

	"github.com/dvloznov/welth/internal/api/handlers"
	"github.com/dvloznov/welth/internal/api/middleware"
	"github.com/dvloznov/welth/internal/archive"
	"github.com/dvloznov/welth/internal/jobs/inmemory"
	"github.com/dvloznov/welth/internal/ledger"
	"github.com/dvloznov/welth/internal/logger"
	"github.com/dvloznov/welth/internal/ratelimit"
	"github.com/dvloznov/welth/internal/receipt"
	"github.com/dvloznov/welth/internal/reconcile"
	"github.com/dvloznov/welth/internal/scan"
	"github.com/dvloznov/welth/internal/store/postgres"
)

func main() {
	// Parse command-line flags
	var (
		port        = flag.String("port", "8080", "HTTP server port")
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (or set DATABASE_URL env)")
		redisAddr   = flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for rate limiting (or set REDIS_ADDR env; empty disables limiting)")
		bucket      = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket for receipt image archiving (or set GCS_BUCKET env; empty disables archiving)")
		model       = flag.String("model", os.Getenv("GEMINI_MODEL"), "Gemini model for receipt extraction (or set GEMINI_MODEL env)")
		rateLimit   = flag.Int64("rate-limit", 100, "Max transaction creates per user per hour")
		workers     = flag.Int("scan-workers", 2, "Concurrent receipt-scan workers")
	)
	flag.Parse()

	log := logger.New()

	if *databaseURL == "" {
		log.Fatal().Msg("No database configured - set -database-url or DATABASE_URL")
	}
	if *bucket == "" {
		log.Warn().Msg("No GCS bucket configured - receipt archiving disabled")
	}

	ctx := context.Background()

	db, err := postgres.New(ctx, *databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if *redisAddr != "" {
		redisLimiter, err := ratelimit.NewRedisLimiter(ctx, *redisAddr, *rateLimit, time.Hour)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisLimiter.Close()
		limiter = redisLimiter
	} else {
		log.Warn().Msg("No Redis configured - transaction rate limiting disabled")
	}

	extractor, err := receipt.NewGeminiExtractor(ctx, *model)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create receipt extractor")
	}

	arch := archive.New(*bucket)
	sessions := reconcile.NewStore()

	// Scan jobs run in-process; the queue interface keeps the door open for
	// an external broker later.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, *workers, jobStore)

	scanSvc := scan.NewService(extractor, sessions, db, arch, log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Int("workers", *workers).Msg("Starting scan workers")
		if err := jobQueue.Start(workerCtx, scanSvc.Handle); err != nil {
			log.Error().Err(err).Msg("Scan workers stopped with error")
		}
	}()

	ledgerSvc := ledger.NewService(db, limiter, log)

	// Initialize handlers
	sessionsHandler := handlers.NewSessionsHandler(sessions, db, ledgerSvc, jobQueue, arch, log)
	transactionsHandler := handlers.NewTransactionsHandler(db, ledgerSvc, log)
	accountsHandler := handlers.NewAccountsHandler(db, log)
	categoriesHandler := handlers.NewCategoriesHandler(db, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Form-session endpoints
	mux.HandleFunc("/api/form-sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sessionsHandler.CreateSession(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/form-sessions/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/form-sessions/")
		sessionID, action, _ := strings.Cut(rest, "/")
		if sessionID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Session ID is required")
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			sessionsHandler.GetSession(w, r, sessionID)
		case action == "" && r.Method == http.MethodPatch:
			sessionsHandler.PatchSession(w, r, sessionID)
		case action == "" && r.Method == http.MethodDelete:
			sessionsHandler.DeleteSession(w, r, sessionID)
		case action == "scan" && r.Method == http.MethodPost:
			sessionsHandler.Scan(w, r, sessionID)
		case action == "submit" && r.Method == http.MethodPost:
			sessionsHandler.Submit(w, r, sessionID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Transaction endpoints
	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			transactionsHandler.ListTransactions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		txID := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		if txID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
			return
		}

		switch r.Method {
		case http.MethodGet:
			transactionsHandler.GetTransaction(w, r, txID)
		case http.MethodPut:
			transactionsHandler.UpdateTransaction(w, r, txID)
		case http.MethodDelete:
			transactionsHandler.DeleteTransaction(w, r, txID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Accounts and categories endpoints
	mux.HandleFunc("/api/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			accountsHandler.ListAccounts(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			categoriesHandler.ListCategories(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Apply middleware; /health bypasses auth.
	api := middleware.Auth(mux)

	root := http.NewServeMux()
	root.Handle("/api/", api)
	root.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(root),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight scans
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
