package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

var (
	pipelineName        string
	pipelineDescription string
	runStatus           string
	runProcessed        int64
	runFailed           int64
	runError            string
	runStartedAt        string
	runCompletedAt      string
	runsLimit           int
)

// pipelinesCmd represents the pipelines command group
var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "Pipeline commands",
	Long: `Commands for registering pipelines and recording their runs.

pipeline_failure alerts look at the most recent runs recorded here.

Examples:
  datamantri pipelines add --name nightly-orders
  datamantri pipelines record-run 8a4c... --status failed --error "timeout"
  datamantri pipelines runs 8a4c...`,
}

var pipelinesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pipelineName == "" {
			return fmt.Errorf("--name is required")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		p := models.NewPipeline(pipelineName, pipelineDescription)
		if err := a.store.Pipelines().Create(cmd.Context(), p); err != nil {
			return fmt.Errorf("create pipeline: %w", err)
		}
		fmt.Printf("Pipeline '%s' created with ID %s\n", p.Name, p.ID)
		return nil
	},
}

var pipelinesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipelines",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.store.Pipelines().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list pipelines: %w", err)
		}

		if jsonOutput() {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No pipelines found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-30s  %s\n", "ID", "NAME", "DESCRIPTION")
		fmt.Println(strings.Repeat("-", 110))
		for _, p := range list {
			fmt.Printf("%-36s  %-30s  %s\n", p.ID, truncate(p.Name, 30), p.Description)
		}
		fmt.Printf("\nTotal: %d pipeline(s)\n", len(list))
		return nil
	},
}

var pipelinesRecordRunCmd = &cobra.Command{
	Use:   "record-run <pipeline-id>",
	Short: "Record a pipeline run",
	Long: `Record the outcome of a pipeline run.

Statuses: running, success, failed, error. Runs that are not running get
a completion time of now unless --completed-at is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := buildRun(args[0])
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.store.Pipelines().GetByID(cmd.Context(), run.PipelineID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("pipeline %s not found", run.PipelineID)
		}
		if err := a.store.Pipelines().CreateRun(cmd.Context(), run); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		fmt.Printf("Recorded %s run %s for pipeline '%s'\n", run.Status, run.ID, p.Name)
		return nil
	},
}

// buildRun assembles a PipelineRun from the record-run flags.
func buildRun(pipelineID string) (*models.PipelineRun, error) {
	status := models.RunStatus(strings.ToLower(runStatus))
	switch status {
	case models.RunStatusRunning, models.RunStatusSuccess, models.RunStatusFailed, models.RunStatusError:
	default:
		return nil, fmt.Errorf("invalid --status %q", runStatus)
	}
	if runProcessed < 0 || runFailed < 0 {
		return nil, fmt.Errorf("record counts cannot be negative")
	}

	started, err := parseTimeFlag(runStartedAt)
	if err != nil {
		return nil, fmt.Errorf("--started-at: %w", err)
	}

	run := &models.PipelineRun{
		PipelineID:       pipelineID,
		Status:           status,
		ErrorMessage:     runError,
		RecordsProcessed: runProcessed,
		RecordsFailed:    runFailed,
		StartedAt:        started,
	}
	if status != models.RunStatusRunning {
		completed, err := parseTimeFlag(runCompletedAt)
		if err != nil {
			return nil, fmt.Errorf("--completed-at: %w", err)
		}
		if completed.Before(started) {
			return nil, fmt.Errorf("--completed-at is before --started-at")
		}
		run.CompletedAt = &completed
	}
	return run, nil
}

var pipelinesRunsCmd = &cobra.Command{
	Use:   "runs <pipeline-id>",
	Short: "Show recent runs of a pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.store.Pipelines().RecentRuns(cmd.Context(), args[0], runsLimit)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}

		if jsonOutput() {
			return printJSON(runs)
		}
		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-8s  %-19s  %-10s  %-10s  %s\n",
			"ID", "STATUS", "STARTED", "DURATION", "RECORDS", "ERROR")
		fmt.Println(strings.Repeat("-", 120))
		for _, r := range runs {
			duration := "-"
			if r.CompletedAt != nil {
				duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
			}
			fmt.Printf("%-36s  %-8s  %-19s  %-10s  %-10s  %s\n",
				r.ID,
				r.Status,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				duration,
				fmt.Sprintf("%d/%d", r.RecordsProcessed-r.RecordsFailed, r.RecordsProcessed),
				truncate(r.ErrorMessage, 40),
			)
		}
		fmt.Printf("\nTotal: %d run(s)\n", len(runs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pipelinesCmd)
	pipelinesCmd.AddCommand(pipelinesAddCmd)
	pipelinesCmd.AddCommand(pipelinesListCmd)
	pipelinesCmd.AddCommand(pipelinesRecordRunCmd)
	pipelinesCmd.AddCommand(pipelinesRunsCmd)

	pipelinesAddCmd.Flags().StringVar(&pipelineName, "name", "", "pipeline name (required)")
	pipelinesAddCmd.Flags().StringVar(&pipelineDescription, "description", "", "pipeline description")

	pipelinesRecordRunCmd.Flags().StringVar(&runStatus, "status", "success", "run status (running, success, failed, error)")
	pipelinesRecordRunCmd.Flags().Int64Var(&runProcessed, "records-processed", 0, "records processed")
	pipelinesRecordRunCmd.Flags().Int64Var(&runFailed, "records-failed", 0, "records that failed")
	pipelinesRecordRunCmd.Flags().StringVar(&runError, "error", "", "error message")
	pipelinesRecordRunCmd.Flags().StringVar(&runStartedAt, "started-at", "", "start time (RFC 3339, default now)")
	pipelinesRecordRunCmd.Flags().StringVar(&runCompletedAt, "completed-at", "", "completion time (RFC 3339, default now)")

	pipelinesRunsCmd.Flags().IntVar(&runsLimit, "limit", 10, "number of runs to show")
}
