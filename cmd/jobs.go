package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/config"
)

var (
	workerMode bool
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Run notification related commands",
}

var notificationsDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch pending user notifications to the notification service",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"notifications_dispatch",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.NotificationsDispatchInterval },
			func(s *service.BillingService, ctx context.Context) error {
				return s.RunDispatchNotificationsBatch(ctx)
			},
		)
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Run idempotency ledger related commands",
}

var ledgerGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete processed-event rows older than the retention window",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"ledger_gc",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.LedgerGCInterval },
			func(s *service.BillingService, ctx context.Context) error {
				return s.RunLedgerGCBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(ledgerCmd)
	notificationsCmd.AddCommand(notificationsDispatchCmd)
	ledgerCmd.AddCommand(ledgerGCCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.BillingService, ctx context.Context) error,
) {
	cfg, billingService, cleanup := mustCreateBillingService()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), billingService, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(billingService, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	billingService *service.BillingService,
	fn func(s *service.BillingService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(billingService, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(billingService, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
