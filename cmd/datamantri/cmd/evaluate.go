package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

var evaluateAlertID string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate alerts once and send notifications",
	Long: `Evaluate every active alert once, or a single alert with --alert.
Triggered alerts are notified and recorded in history exactly as the
scheduler would.

Examples:
  datamantri evaluate
  datamantri evaluate --alert 3f2b... -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		runner := a.newRunner(a.newEvaluator())

		if evaluateAlertID == "" {
			summary, err := runner.RunOnce(ctx)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(summary)
			}
			fmt.Printf("Evaluated: %d  Triggered: %d  Notified: %d  Persist errors: %d  (%s)\n",
				summary.Evaluated, summary.Triggered, summary.Notified, summary.PersistErrors, summary.Duration)
			return nil
		}

		outcome, err := runner.RunAlert(ctx, evaluateAlertID)
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(map[string]any{
				"triggered":     outcome.Triggered(),
				"payload":       outcome.Payload,
				"notifications": outcome.Results,
			})
		}
		if !outcome.Triggered() {
			fmt.Printf("%s: condition not met\n", outcome.Alert.Name)
			return nil
		}

		fmt.Printf("%s: TRIGGERED (%s)\n", outcome.Alert.Name, outcome.Payload.Severity)
		channels := make([]string, 0, len(outcome.Results))
		for ch := range outcome.Results {
			channels = append(channels, string(ch))
		}
		sort.Strings(channels)
		for _, ch := range channels {
			fmt.Printf("  %-10s %s\n", ch, describeResult(outcome.Results[models.Channel(ch)]))
		}
		if outcome.Err != nil {
			return fmt.Errorf("alert triggered but not recorded: %w", outcome.Err)
		}
		return nil
	},
}

func describeResult(r models.ChannelResult) string {
	if r.Success {
		return "ok: " + r.Message
	}
	return "failed: " + r.Error
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateAlertID, "alert", "", "evaluate only this alert ID")
	rootCmd.AddCommand(evaluateCmd)
}
