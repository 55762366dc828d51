// Command aquacast runs the nightly projection engine, either as a one-shot
// run or as a daemon that fires at a fixed UTC time every day.
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aquacast/internal/archive"
	"aquacast/internal/blob"
	"aquacast/internal/config"
	"aquacast/internal/engine"
	"aquacast/internal/forecast"
	"aquacast/internal/infra/persistence"
	"aquacast/internal/infra/snapshot"
	"aquacast/internal/observability"
	"aquacast/internal/orchestrator"
	"aquacast/pkg/domain"
)

func main() {
	once := flag.Bool("once", false, "run a single projection cycle and exit")
	runDateFlag := flag.String("run-date", "", "override the run date (YYYY-MM-DD, defaults to today UTC)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := run(logger, *once, *runDateFlag); err != nil {
		logger.Error("aquacast exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(logger *slog.Logger, once bool, runDateFlag string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := persistence.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	blobs, err := blob.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	var metrics observability.MetricsRecorder = observability.NewExpvarRecorder("aquacast")
	if cfg.MetricsAddr != "" {
		prom, err := observability.NewPrometheusRecorder(nil)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		metrics = prom
		go serveMetrics(logger, cfg.MetricsAddr)
	}

	// Readers are reloaded per cycle so a daemon picks up each night's fresh
	// upstream snapshot.
	cycle := func(ctx context.Context, runDate time.Time) error {
		assim, planning, err := openReaders(cfg)
		if err != nil {
			return err
		}
		pipeline := engine.Pipeline{
			BiasWindowDays:      cfg.BiasWindowDays,
			BiasClamp:           cfg.BiasClamp,
			MaxHorizonDays:      cfg.MaxHorizonDays,
			AttentionWindowDays: cfg.AttentionWindowDays,
		}
		orch := orchestrator.New(assim, planning, store, pipeline,
			orchestrator.WithLogger(logger),
			orchestrator.WithMetricsRecorder(metrics),
			orchestrator.WithWorkers(cfg.Workers),
			orchestrator.WithJobTimeout(cfg.JobTimeout),
			orchestrator.WithStoreRetries(cfg.StoreRetries),
		)
		archiver := archive.New(store, blobs, cfg.CompressAfterDays, cfg.RetentionDays,
			archive.WithLogger(logger),
			archive.WithMetricsRecorder(metrics),
		)
		svc := forecast.New(store, orch, archiver,
			forecast.WithLogger(logger),
			forecast.WithMetricsRecorder(metrics),
		)
		report, err := svc.RunNightly(ctx, runDate)
		if err != nil {
			return err
		}
		logger.Info("run complete", "report", report.String())
		return nil
	}

	if once {
		runDate, err := resolveRunDate(runDateFlag)
		if err != nil {
			return err
		}
		return cycle(ctx, runDate)
	}

	sched, err := orchestrator.NewScheduler(cfg.RunAtUTC, cycle, logger, nil)
	if err != nil {
		return err
	}
	if err := sched.Loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// resolveRunDate parses the -run-date override, defaulting to today UTC.
func resolveRunDate(value string) (time.Time, error) {
	if value == "" {
		return domain.CivilDate(time.Now()), nil
	}
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("run date %q: %w", value, err)
	}
	return d, nil
}

func serveMetrics(logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/vars", expvar.Handler())
	logger.Info("metrics listening", "addr", addr)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", "error", err.Error())
	}
}

// openReaders loads the upstream snapshot when configured. Without one the
// engine runs over an empty assignment set, which keeps daemon startup
// independent of the upstream export schedule.
func openReaders(cfg config.Config) (domain.AssimilationReader, domain.PlanningReader, error) {
	if cfg.InputSnapshot == "" {
		reader, err := snapshot.NewReader(snapshot.Document{})
		return reader, reader, err
	}
	reader, err := snapshot.Load(cfg.InputSnapshot)
	if err != nil {
		return nil, nil, fmt.Errorf("open input snapshot: %w", err)
	}
	return reader, reader, nil
}
