// Command worker materializes due recurring transactions on a fixed tick.
// It runs alongside the API server and shares nothing with it but the
// database.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/welth/internal/logger"
	"github.com/dvloznov/welth/internal/recurring"
	"github.com/dvloznov/welth/internal/store/postgres"
)

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (or set DATABASE_URL env)")
		tick        = flag.Duration("tick", 15*time.Minute, "How often to look for due recurring transactions")
		batch       = flag.Int("batch", 100, "Max templates processed per tick")
	)
	flag.Parse()

	log := logger.New()

	if *databaseURL == "" {
		log.Fatal().Msg("No database configured - set -database-url or DATABASE_URL")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, *databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	svc := recurring.NewService(db, log)

	log.Info().Dur("tick", *tick).Msg("Starting recurring-transaction worker")

	go func() {
		ticker := time.NewTicker(*tick)
		defer ticker.Stop()

		// One pass at startup so a restart never delays overdue templates
		// by a full tick.
		run(ctx, svc, *batch, log)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run(ctx, svc, *batch, log)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")
	cancel()
	log.Info().Msg("Worker exited")
}

func run(ctx context.Context, svc *recurring.Service, batch int, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if _, err := svc.ProcessDue(runCtx, time.Now(), batch); err != nil {
		log.Error().Err(err).Msg("Failed to process due recurring transactions")
	}
}
