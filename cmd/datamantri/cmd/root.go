// Package cmd contains the CLI commands for datamantri.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/datamantri/internal/alerting"
	"github.com/good-yellow-bee/datamantri/internal/config"
	"github.com/good-yellow-bee/datamantri/internal/logging"
	"github.com/good-yellow-bee/datamantri/internal/notifier"
	"github.com/good-yellow-bee/datamantri/internal/scheduler"
	"github.com/good-yellow-bee/datamantri/internal/storage"
)

var (
	// Used for flags
	configFile string
	output     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "datamantri",
	Short: "DataMantri - data platform alerting",
	Long: `DataMantri watches data sources and pipelines and notifies people
when something goes wrong.

Conditions:
  - datasource_failure: a data source stops answering queries
  - pipeline_failure:   one of the last N pipeline runs failed
  - sla_breach:         a data source hasn't synced by its expected time

Notifications go out over Email, Slack, Microsoft Teams and WhatsApp.

Configuration is read from an optional YAML file (--config) and the
environment (DATAMANTRI_*, SMTP_*, TWILIO_*). DATAMANTRI_MASTER_KEY is
required; it encrypts stored data source passwords.

Examples:
  # Import alert definitions and start the scheduler and API
  datamantri alerts import alerts.yaml
  datamantri serve

  # Evaluate every active alert once
  datamantri evaluate`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (YAML, or .enc encrypted YAML)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
}

// app bundles what every command that touches the database needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *storage.SQLiteStorage
}

// newApp loads configuration, builds the logger and opens the migrated store.
func newApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	masterKey, err := cfg.RequireMasterKey()
	if err != nil {
		return nil, err
	}

	store := storage.NewSQLiteStorage(cfg.Database.Path, masterKey)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &app{cfg: cfg, logger: logger, store: store}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *app) newNotifier() *notifier.Service {
	cfg := a.cfg
	senders := []notifier.Sender{
		notifier.NewEmailSender(notifier.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}),
		notifier.NewSlackSender(),
		notifier.NewTeamsSender(),
		notifier.NewWhatsAppSender(notifier.WhatsAppConfig{
			AccountSID:        cfg.Twilio.AccountSID,
			AuthToken:         cfg.Twilio.AuthToken,
			From:              cfg.Twilio.WhatsAppFrom,
			MessagesPerSecond: cfg.Twilio.MessagesPerSecond,
		}),
	}

	var opts []notifier.Option
	if cfg.RateLimit.Enabled {
		opts = append(opts, notifier.WithRateLimit(notifier.RateLimitConfig{
			Enabled:      true,
			MaxPerWindow: cfg.RateLimit.MaxPerWindow,
			Window:       cfg.RateLimit.Window,
		}))
	}
	return notifier.NewService(a.logger, senders, opts...)
}

func (a *app) newEvaluator() *alerting.Evaluator {
	return alerting.New(a.store.DataSources(), a.store.Pipelines(), a.logger)
}

func (a *app) newRunner(evaluator *alerting.Evaluator) *scheduler.Runner {
	return scheduler.New(scheduler.Config{
		Interval:         a.cfg.Scheduler.Interval,
		AlertTimeout:     a.cfg.Scheduler.AlertTimeout,
		HistoryRetention: a.cfg.History.Retention,
	}, a.store.Alerts(), a.store.AlertHistory(), evaluator, a.newNotifier(), a.logger)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonOutput() bool {
	return output == "json"
}
