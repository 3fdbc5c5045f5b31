package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/datamantri/internal/alerting"
	"github.com/good-yellow-bee/datamantri/internal/api"
	"github.com/good-yellow-bee/datamantri/internal/api/health"
	"github.com/good-yellow-bee/datamantri/internal/metrics"
	"github.com/good-yellow-bee/datamantri/internal/models"
	"github.com/good-yellow-bee/datamantri/pkg/buildinfo"
)

var serveAlertsFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the alert scheduler, HTTP API and metrics server",
	Long: `Run the evaluation loop on scheduler.interval, the JSON API on
server.http_address and Prometheus metrics on server.metrics_address.

With --alerts-file the file is imported at startup and re-imported
whenever it changes on disk.

SIGINT or SIGTERM stops everything gracefully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		info := buildinfo.Get()
		metrics.SetBuildInfo(info.Version, info.Commit, info.BuildTime)
		a.logger.Info("starting datamantri",
			zap.String("version", info.Version),
			zap.String("database", a.cfg.Database.Path),
			zap.Duration("interval", a.cfg.Scheduler.Interval))

		evaluator := a.newEvaluator()
		stats := evaluator.Stats()
		if err := metrics.RegisterEvaluatorStats(prometheus.DefaultRegisterer, metrics.EvaluatorCounters{
			Evaluated: stats.Evaluated.Load,
			Triggered: stats.Triggered.Load,
			Skipped:   stats.Skipped.Load,
			Failed:    stats.Failed.Load,
		}); err != nil {
			return fmt.Errorf("register evaluator metrics: %w", err)
		}
		runner := a.newRunner(evaluator)

		apiServer, err := api.New(&api.Config{
			Address: a.cfg.Server.HTTPAddress,
			Version: info.Version,
		}, a.store, runner, a.logger)
		if err != nil {
			return err
		}
		maxAge := 2*a.cfg.Scheduler.Interval + a.cfg.Scheduler.AlertTimeout
		apiServer.RegisterHealthChecker(health.NewFuncChecker("scheduler", func(ctx context.Context) error {
			return runner.Healthy(maxAge)
		}))

		var watch func(context.Context) error
		if serveAlertsFile != "" {
			apply := func(ctx context.Context, defs []*models.Alert) error {
				for _, def := range defs {
					if _, err := upsertAlert(ctx, a.store.Alerts(), def); err != nil {
						return fmt.Errorf("alert %q: %w", def.Name, err)
					}
				}
				return nil
			}
			defs, err := alerting.LoadAlertsFromFile(serveAlertsFile)
			if err != nil {
				return err
			}
			if err := apply(ctx, defs); err != nil {
				return err
			}
			watcher, err := alerting.NewFileWatcher(serveAlertsFile, apply, a.logger)
			if err != nil {
				return err
			}
			watch = watcher.Run
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return runner.Run(gctx) })
		g.Go(func() error { return apiServer.Run(gctx) })
		if watch != nil {
			g.Go(func() error { return watch(gctx) })
		}

		if addr := a.cfg.Server.MetricsAddress; addr != "" {
			metricsServer := metrics.NewServer(addr, a.logger)
			g.Go(metricsServer.Start)
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return metricsServer.Shutdown(shutdownCtx)
			})
		}

		err = g.Wait()
		a.logger.Info("datamantri stopped")
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAlertsFile, "alerts-file", "", "alert definitions to import and watch")
	rootCmd.AddCommand(serveCmd)
}
