package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/good-yellow-bee/datamantri/internal/alerting"
	"github.com/good-yellow-bee/datamantri/internal/models"
)

var (
	dsName       string
	dsType       string
	dsHost       string
	dsPort       int
	dsUsername   string
	dsDatabase   string
	dsNoPassword bool
	dsSyncAt     string
)

// datasourcesCmd represents the datasources command group
var datasourcesCmd = &cobra.Command{
	Use:     "datasources",
	Aliases: []string{"ds"},
	Short:   "Data source commands",
	Long: `Commands for managing monitored data sources.

Passwords are prompted interactively and stored encrypted with
DATAMANTRI_MASTER_KEY.

Examples:
  # Register a PostgreSQL warehouse
  datamantri datasources add --name warehouse --type postgresql \
    --host db.internal --username monitor --database analytics

  # Record a successful sync (used by sla_breach alerts)
  datamantri datasources sync 5e7a...

  # Check that a data source answers
  datamantri datasources test 5e7a...`,
}

var datasourcesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a data source",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dsName == "" {
			return fmt.Errorf("--name is required")
		}
		connType := models.ParseConnectionType(dsType)
		if _, _, err := alerting.BuildDSN(&models.DataSource{ConnectionType: connType, Database: dsDatabase}); err != nil {
			return err
		}

		ds := models.NewDataSource(dsName, connType)
		ds.Host = dsHost
		if dsPort != 0 {
			ds.Port = dsPort
		}
		ds.Username = dsUsername
		ds.Database = dsDatabase

		if !dsNoPassword {
			password, err := promptPassword("Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			ds.Password = password
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.DataSources().Create(cmd.Context(), ds); err != nil {
			return fmt.Errorf("create data source: %w", err)
		}
		fmt.Printf("Data source '%s' created with ID %s\n", ds.Name, ds.ID)
		return nil
	},
}

var datasourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List data sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.store.DataSources().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list data sources: %w", err)
		}

		if jsonOutput() {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No data sources found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-24s  %-10s  %-30s  %s\n",
			"ID", "NAME", "TYPE", "ADDRESS", "LAST SYNC")
		fmt.Println(strings.Repeat("-", 120))
		for _, ds := range list {
			address := ds.Database
			if ds.Host != "" {
				address = fmt.Sprintf("%s:%d/%s", ds.Host, ds.Port, ds.Database)
			}
			lastSync := "never"
			if ds.LastSync != nil {
				lastSync = ds.LastSync.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-36s  %-24s  %-10s  %-30s  %s\n",
				ds.ID, truncate(ds.Name, 24), ds.ConnectionType, truncate(address, 30), lastSync)
		}
		fmt.Printf("\nTotal: %d data source(s)\n", len(list))
		return nil
	},
}

var datasourcesSyncCmd = &cobra.Command{
	Use:   "sync <datasource-id>",
	Short: "Record a completed sync",
	Long: `Record that a data source finished syncing. sla_breach alerts compare
this timestamp against their expected time.

--at accepts RFC 3339 and defaults to now.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := parseTimeFlag(dsSyncAt)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.DataSources().UpdateLastSync(cmd.Context(), args[0], at); err != nil {
			return err
		}
		fmt.Printf("Data source %s synced at %s\n", args[0], at.Format(time.RFC3339))
		return nil
	},
}

var datasourcesTestCmd = &cobra.Command{
	Use:   "test <datasource-id>",
	Short: "Run the health probe against a data source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ds, err := a.store.DataSources().GetByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if ds == nil {
			return fmt.Errorf("data source %s not found", args[0])
		}

		start := time.Now()
		if err := alerting.NewSQLProber().Probe(cmd.Context(), ds); err != nil {
			return fmt.Errorf("data source '%s' failed: %w", ds.Name, err)
		}
		fmt.Printf("Data source '%s' OK (%s)\n", ds.Name, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

// parseTimeFlag parses an RFC 3339 flag value; empty means now.
func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// promptPassword prompts for a password without echoing to the terminal.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		passwordBytes, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(passwordBytes), nil
	}

	// Piped input
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil && password == "" {
		return "", err
	}
	return strings.TrimSpace(password), nil
}

func init() {
	rootCmd.AddCommand(datasourcesCmd)
	datasourcesCmd.AddCommand(datasourcesAddCmd)
	datasourcesCmd.AddCommand(datasourcesListCmd)
	datasourcesCmd.AddCommand(datasourcesSyncCmd)
	datasourcesCmd.AddCommand(datasourcesTestCmd)

	datasourcesAddCmd.Flags().StringVar(&dsName, "name", "", "data source name (required)")
	datasourcesAddCmd.Flags().StringVar(&dsType, "type", "postgresql", "connection type (postgresql, mysql)")
	datasourcesAddCmd.Flags().StringVar(&dsHost, "host", "localhost", "database host")
	datasourcesAddCmd.Flags().IntVar(&dsPort, "port", 0, "database port (default: engine default)")
	datasourcesAddCmd.Flags().StringVar(&dsUsername, "username", "", "database user")
	datasourcesAddCmd.Flags().StringVar(&dsDatabase, "database", "", "database name")
	datasourcesAddCmd.Flags().BoolVar(&dsNoPassword, "no-password", false, "do not prompt for a password")

	datasourcesSyncCmd.Flags().StringVar(&dsSyncAt, "at", "", "sync time (RFC 3339, default now)")
}
