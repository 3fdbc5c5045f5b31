package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/datamantri/internal/alerting"
	"github.com/good-yellow-bee/datamantri/internal/models"
	"github.com/good-yellow-bee/datamantri/internal/storage"
)

var (
	alertsExportFile string
	alertsActiveOnly bool
)

// alertsCmd represents the alerts command group
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Alert definition commands",
	Long: `Commands for managing alert definitions.

Alerts are defined in YAML and imported into the database. Entries that
carry an id, or whose name matches a stored alert, update that alert in
place.

Examples:
  # Import alert definitions
  datamantri alerts import alerts.yaml

  # Export every alert back to YAML
  datamantri alerts export -f alerts.yaml

  # Stop evaluating an alert
  datamantri alerts disable 3f2b...`,
}

var alertsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import alerts from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := alerting.LoadAlertsFromFile(args[0])
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		var created, updated int
		for _, def := range defs {
			isNew, err := upsertAlert(ctx, a.store.Alerts(), def)
			if err != nil {
				return fmt.Errorf("alert %q: %w", def.Name, err)
			}
			if isNew {
				created++
			} else {
				updated++
			}
		}

		fmt.Printf("Imported %d alert(s): %d created, %d updated\n", len(defs), created, updated)
		return nil
	},
}

// upsertAlert updates the alert matching def and creates it otherwise.
// Definitions without an ID match an existing alert by name, so re-importing
// the same file is idempotent.
func upsertAlert(ctx context.Context, repo storage.AlertRepository, def *models.Alert) (bool, error) {
	if err := alerting.ValidateAlert(def); err != nil {
		return false, err
	}

	existing, err := findAlert(ctx, repo, def)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return true, repo.Create(ctx, def)
	}

	def.ID = existing.ID
	def.CreatedAt = existing.CreatedAt
	def.TriggerCount = existing.TriggerCount
	def.LastTriggeredAt = existing.LastTriggeredAt
	return false, repo.Update(ctx, def)
}

func findAlert(ctx context.Context, repo storage.AlertRepository, def *models.Alert) (*models.Alert, error) {
	if def.ID != "" {
		return repo.GetByID(ctx, def.ID)
	}
	all, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range all {
		if a.Name == def.Name {
			return a, nil
		}
	}
	return nil, nil
}

var alertsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export alerts as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.store.Alerts().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list alerts: %w", err)
		}
		data, err := alerting.MarshalAlerts(list)
		if err != nil {
			return err
		}

		if alertsExportFile == "" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(alertsExportFile, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", alertsExportFile, err)
		}
		fmt.Printf("Exported %d alert(s) to %s\n", len(list), alertsExportFile)
		return nil
	},
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		repo := a.store.Alerts()
		var list []*models.Alert
		if alertsActiveOnly {
			list, err = repo.ListActive(cmd.Context())
		} else {
			list, err = repo.List(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("list alerts: %w", err)
		}

		if jsonOutput() {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No alerts found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-30s  %-20s  %-6s  %-8s  %s\n",
			"ID", "NAME", "CONDITION", "ACTIVE", "TRIGGERS", "LAST TRIGGERED")
		fmt.Println(strings.Repeat("-", 130))
		for _, al := range list {
			last := "-"
			if al.LastTriggeredAt != nil {
				last = al.LastTriggeredAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-36s  %-30s  %-20s  %-6t  %-8d  %s\n",
				al.ID, truncate(al.Name, 30), al.ConditionType, al.IsActive, al.TriggerCount, last)
		}
		fmt.Printf("\nTotal: %d alert(s)\n", len(list))
		return nil
	},
}

func newSetActiveCmd(use string, active bool) *cobra.Command {
	verb := "Disable"
	if active {
		verb = "Enable"
	}
	return &cobra.Command{
		Use:   use + " <alert-id>",
		Short: verb + " an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Alerts().SetActive(cmd.Context(), args[0], active); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("alert %s not found", args[0])
				}
				return err
			}
			fmt.Printf("Alert %s %sd.\n", args[0], strings.ToLower(verb))
			return nil
		},
	}
}

// truncate shortens s to n runes for table output.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsImportCmd)
	alertsCmd.AddCommand(alertsExportCmd)
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(newSetActiveCmd("enable", true))
	alertsCmd.AddCommand(newSetActiveCmd("disable", false))

	alertsExportCmd.Flags().StringVarP(&alertsExportFile, "file", "f", "", "write to file instead of stdout")
	alertsListCmd.Flags().BoolVar(&alertsActiveOnly, "active", false, "only list active alerts")
}
