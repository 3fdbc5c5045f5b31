package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/datamantri/internal/models"
	"github.com/good-yellow-bee/datamantri/internal/storage"
)

var (
	historyAlertID string
	historyPage    int
	historyPerPage int
	resolveBy      string
	resolveNotes   string
)

// historyCmd represents the history command group
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Alert history commands",
	Long: `Commands for browsing and resolving triggered alerts.

Examples:
  # Most recent triggers across all alerts
  datamantri history list

  # Triggers of one alert, second page
  datamantri history list --alert 3f2b... --page 2

  # Mark an entry as handled
  datamantri history resolve 9c1d... --by alice --notes "replica restarted"`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert history, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyPage < 1 {
			historyPage = 1
		}
		if historyPerPage < 1 || historyPerPage > 100 {
			return fmt.Errorf("--per-page must be between 1 and 100")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		repo := a.store.AlertHistory()
		offset := (historyPage - 1) * historyPerPage
		var (
			entries []*models.AlertHistory
			total   int64
		)
		if historyAlertID != "" {
			entries, total, err = repo.ListByAlert(cmd.Context(), historyAlertID, historyPerPage, offset)
		} else {
			entries, total, err = repo.List(cmd.Context(), historyPerPage, offset)
		}
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}

		if jsonOutput() {
			return printJSON(map[string]any{
				"items":    entries,
				"total":    total,
				"page":     historyPage,
				"per_page": historyPerPage,
			})
		}
		if len(entries) == 0 {
			fmt.Println("No history entries found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-30s  %-19s  %-8s  %-9s  %s\n",
			"ID", "ALERT", "TRIGGERED", "SEVERITY", "NOTIFIED", "RESOLVED BY")
		fmt.Println(strings.Repeat("-", 130))
		for _, h := range entries {
			resolved := "-"
			if h.IsResolved() {
				resolved = h.ResolvedBy
			}
			fmt.Printf("%-36s  %-30s  %-19s  %-8s  %-9s  %s\n",
				h.ID,
				truncate(h.AlertName, 30),
				h.TriggeredAt.Format("2006-01-02 15:04:05"),
				h.Severity,
				fmt.Sprintf("%d/%d", h.SuccessfulChannels(), len(h.NotificationsSent)),
				resolved,
			)
		}
		fmt.Printf("\nTotal: %d entries, page %d\n", total, historyPage)
		return nil
	},
}

var historyResolveCmd = &cobra.Command{
	Use:   "resolve <history-id>",
	Short: "Resolve an alert history entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolveBy = strings.TrimSpace(resolveBy)
		if resolveBy == "" {
			return fmt.Errorf("--by is required")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.store.AlertHistory().Resolve(cmd.Context(), args[0], resolveBy, resolveNotes, time.Now().UTC())
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("history entry %s not found", args[0])
		case errors.Is(err, storage.ErrAlreadyResolved):
			return fmt.Errorf("history entry %s is already resolved", args[0])
		case err != nil:
			return err
		}

		fmt.Printf("History entry %s resolved by %s.\n", args[0], resolveBy)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyResolveCmd)

	historyListCmd.Flags().StringVar(&historyAlertID, "alert", "", "only entries of this alert ID")
	historyListCmd.Flags().IntVar(&historyPage, "page", 1, "page number")
	historyListCmd.Flags().IntVar(&historyPerPage, "per-page", 50, "entries per page (max 100)")

	historyResolveCmd.Flags().StringVar(&resolveBy, "by", "", "who resolved the entry (required)")
	historyResolveCmd.Flags().StringVar(&resolveNotes, "notes", "", "resolution notes")
}
