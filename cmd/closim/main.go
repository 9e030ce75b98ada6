package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"closim/internal/amort"
	"closim/internal/config"
	"closim/internal/gateway"
	"closim/internal/observability"
	"closim/internal/persistence"
	"closim/internal/pipeline"
	"closim/internal/progress"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to run configuration (TOML)")
		resumeRun  = flag.String("resume", "", "run id to resume from its latest checkpoint")
	)
	flag.Parse()

	logger := observability.NewLogger("closim")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration invalid")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- Postgres (optional) ---
	var store *persistence.Store
	var db *sql.DB
	if cfg.Postgres.DSN != "" {
		db, err = persistence.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connect")
		}
		defer db.Close()

		if err := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir).Up(ctx); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		store = persistence.NewStore(db)
		logger.Info().Msg("postgres connected, migrations applied")
	}

	// --- Gateway ---
	emulator := gateway.NewEmulator(emulatorPeriod(cfg))
	if store != nil {
		emulator.WithStore(store)
	}

	// --- Run identity ---
	runID := *resumeRun
	if runID == "" {
		runID = uuid.NewString()
	}

	// --- Progress reporting, optionally fanned out to NATS ---
	var reporter progress.Reporter = progress.NewLogReporter(observability.NewLogger("run"))

	g, gctx := errgroup.WithContext(ctx)

	if cfg.NATS.URL != "" {
		nc, js, err := progress.ConnectNATS(cfg.NATS.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()

		if err := progress.EnsureRunStream(ctx, js); err != nil {
			logger.Fatal().Err(err).Msg("ensure run events stream")
		}

		events := make(chan progress.RunEvent, 1024)
		publisher := progress.NewPublisher(js, events)
		g.Go(func() error {
			err := publisher.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})

		reporter = progress.NewEventReporter(reporter, runID, events)
		logger.Info().Str("url", cfg.NATS.URL).Msg("run events publishing to NATS")
	}

	// --- Metrics + health endpoints ---
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", health.LivenessHandler)
		mux.HandleFunc("/readyz", health.ReadinessHandler)
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}

		g.Go(func() error {
			<-gctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			return srv.Shutdown(shutCtx)
		})
		g.Go(func() error {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics server listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	// --- Engine ---
	engine, err := pipeline.New(&pipeline.RunContext{
		RunID:    runID,
		Config:   cfg,
		Gateway:  emulator,
		Reporter: reporter,
		Metrics:  metrics,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("build pipeline")
	}

	if *resumeRun != "" {
		if store == nil {
			logger.Fatal().Msg("resume requires a postgres DSN")
		}
		cp, err := store.LoadLatestCheckpoint(ctx, runID)
		if err != nil {
			logger.Fatal().Err(err).Msg("load checkpoint")
		}
		if cp == nil {
			logger.Fatal().Str("run_id", runID).Msg("no checkpoint for run")
		}
		if err := engine.RestoreRunState(cp.State); err != nil {
			logger.Fatal().Err(err).Msg("restore run state")
		}
		logger.Info().Str("run_id", runID).Int("phase", cp.Phase).Msg("resuming from checkpoint")
	}

	health.SetReady(true)

	// --- Execute the run ---
	runErr := make(chan error, 1)
	g.Go(func() error {
		var err error
		if cfg.Breakpoint > 0 {
			err = engine.RunToBreakpoint(gctx, cfg.Breakpoint)
		} else {
			err = engine.RunToCompletion(gctx)
		}
		runErr <- err
		cancel()
		return nil
	})

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	case <-gctx.Done():
	}

	if err := g.Wait(); err != nil {
		log.Printf("ERROR: worker failed: %v", err)
	}

	select {
	case err := <-runErr:
		if err != nil {
			logger.Error().Err(err).Str("run_id", runID).Msg("run halted")
			os.Exit(1)
		}
		logger.Info().Str("run_id", runID).Bool("paused", engine.Paused()).Msg("run finished")
	default:
		logger.Info().Msg("run interrupted before completion")
	}
}

// emulatorPeriod derives the simulated clock's step from the first loan's
// payment frequency, monthly when no loans are configured.
func emulatorPeriod(cfg config.Config) time.Duration {
	frequency := int64(12)
	if len(cfg.Loans) > 0 && cfg.Loans[0].Frequency > 0 {
		frequency = cfg.Loans[0].Frequency
	}
	period, err := amort.TermLength(frequency)
	if err != nil {
		return 30 * 24 * time.Hour
	}
	return period
}
