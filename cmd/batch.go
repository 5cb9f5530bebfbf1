// cmd/batch.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/AlperenTurkmen/job-finder-sub001/internal/jobs"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/observability"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/orchestrator"
)

// newBatchCmd creates and configures the `batch` command.
func newBatchCmd() *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Applies to every job in a saved jobs file",
		Long: "Loads a jobs file (the newest all_jobs_*.json by default), optionally " +
			"filters by company and caps the count, then runs the application flow " +
			"against each posting with bounded parallelism.",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("batch.jobs_file", cmd.Flags().Lookup("jobs")); err != nil {
				return err
			}
			if err := viper.BindPFlag("batch.company", cmd.Flags().Lookup("company")); err != nil {
				return err
			}
			if err := viper.BindPFlag("batch.limit", cmd.Flags().Lookup("limit")); err != nil {
				return err
			}
			if err := viper.BindPFlag("batch.parallel", cmd.Flags().Lookup("parallel")); err != nil {
				return err
			}
			return viper.BindPFlag("batch.delay", cmd.Flags().Lookup("delay"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := resolveConfig()
			if err != nil {
				return err
			}
			if headful, _ := cmd.Flags().GetBool("headful"); headful {
				cfg.Browser.Headless = false
			}

			jobsFile := cfg.Batch.JobsFile
			if jobsFile == "" {
				jobsFile, err = jobs.FindLatest(".")
				if err != nil {
					return err
				}
			}
			list, err := jobs.Load(jobsFile)
			if err != nil {
				return err
			}
			list = jobs.FilterCompany(list, cfg.Batch.Company)
			list = jobs.Limit(list, cfg.Batch.Limit)
			if len(list) == 0 {
				return fmt.Errorf("no jobs to process in %s", jobsFile)
			}

			if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Would apply to %d jobs from %s:\n", len(list), jobsFile)
				for i, job := range list {
					fmt.Fprintf(out, "  %d. %s\n", i+1, job.String())
				}
				return nil
			}

			logger.Info("Starting batch run",
				zap.String("jobs_file", jobsFile),
				zap.Int("jobs", len(list)),
				zap.Int("parallel", cfg.Batch.Parallel))

			components, err := initializeAppComponents(ctx, cfg, logger)
			if err != nil {
				components.Shutdown(logger)
				return err
			}
			defer components.Shutdown(logger)

			batch, err := orchestrator.NewBatchRunner(components.Runner, cfg.Batch, logger)
			if err != nil {
				return err
			}
			report, err := batch.Run(ctx, list)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("batch aborted by user signal")
				}
				return err
			}

			reportPath, err := batch.WriteReport(report, cfg.Output.Dir)
			if err != nil {
				return fmt.Errorf("failed to write batch report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Batch complete: %d applied, %d not applied (report: %s)\n",
				report.Summary.Successful, report.Summary.Failed, reportPath)
			return nil
		},
	}

	batchCmd.Flags().String("jobs", "", "Path to the jobs JSON file. (Defaults to the newest all_jobs_*.json)")
	batchCmd.Flags().String("company", "", "Only apply to jobs from this company.")
	batchCmd.Flags().Int("limit", 0, "Cap the number of jobs to process (0 = no cap).")
	batchCmd.Flags().Int("parallel", 0, "Number of concurrent browser sessions. (Overrides config/env)")
	batchCmd.Flags().Duration("delay", 0, "Politeness pause between job starts. (Overrides config/env)")
	batchCmd.Flags().Bool("dry-run", false, "List the jobs that would be processed and exit.")
	batchCmd.Flags().Bool("headful", false, "Run the browser with a visible window.")

	return batchCmd
}
