package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/skillmeat/pkg/config"
	"github.com/platinummonkey/skillmeat/pkg/observability"
	"github.com/platinummonkey/skillmeat/pkg/submissions"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger("info", os.Stderr).WithError(err).Fatal("Invalid configuration")
	}

	schedule := flag.String("schedule", cfg.CleanupSchedule, "Cron schedule for submission cleanup")
	days := flag.Int("days", cfg.SubmissionRetentionDays, "Delete terminal submissions older than this many days")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Address for the /metrics endpoint")
	runOnce := flag.Bool("run-once", false, "Run cleanup once and exit")
	flag.Parse()

	logger := observability.NewLogger(cfg.LogLevel, os.Stderr)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	tracker, err := submissions.NewTracker(cfg.SubmissionsDir(),
		submissions.WithLogger(logger),
		submissions.WithMetrics(metrics))
	if err != nil {
		logger.WithError(err).Fatal("Failed to open submission tracker")
	}

	scheduler, err := submissions.NewCleanupScheduler(tracker, *schedule, *days, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to schedule cleanup")
	}

	// Run once mode (for testing or manual pruning)
	if *runOnce {
		removed, err := scheduler.RunOnce()
		if err != nil {
			logger.WithError(err).Fatal("Cleanup failed")
		}
		logger.WithField("removed", removed).Info("Cleanup completed")
		return
	}

	mux := http.NewServeMux()
	observability.RegisterMetricsEndpoint(mux, registry)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	server := &http.Server{
		Addr:              *metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", *metricsAddr).Info("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Metrics server failed")
		}
	}()

	scheduler.Start()
	logger.WithFields(logrus.Fields{
		"schedule": *schedule,
		"days":     *days,
		"next_run": scheduler.Next().Format(time.RFC3339),
	}).Info("Submission janitor started")

	shutdown := observability.NewShutdownManager(logger, server, 30*time.Second)
	shutdown.RegisterShutdownFunc("cleanup-scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err := shutdown.WaitForShutdown(context.Background()); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
}
