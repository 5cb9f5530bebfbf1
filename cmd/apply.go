// cmd/apply.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/AlperenTurkmen/job-finder-sub001/internal/observability"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/orchestrator"
)

// newApplyCmd creates and configures the `apply` command.
func newApplyCmd() *cobra.Command {
	applyCmd := &cobra.Command{
		Use:   "apply [job-url]",
		Short: "Applies to a single job posting",
		Long: "Discovers the application form behind the job URL, resolves answers from " +
			"the answers file and profile heuristics, fills every field, and submits.",
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their corresponding Viper keys. This is the idiomatic way
			// to ensure that command-line flags correctly override values from
			// the config file and environment variables.
			if err := viper.BindPFlag("answers.file", cmd.Flags().Lookup("answers")); err != nil {
				return err
			}
			if err := viper.BindPFlag("answers.profile", cmd.Flags().Lookup("profile")); err != nil {
				return err
			}
			if err := viper.BindPFlag("answers.cv_path", cmd.Flags().Lookup("cv")); err != nil {
				return err
			}
			if err := viper.BindPFlag("answers.cover_letter_path", cmd.Flags().Lookup("cover-letter")); err != nil {
				return err
			}
			return viper.BindPFlag("output.dir", cmd.Flags().Lookup("output-dir"))
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
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			jobURL := normalizeJobURL(args[0])
			logger.Info("Starting application run",
				zap.String("url", jobURL),
				zap.Bool("dry_run", dryRun),
				zap.String("answers_file", cfg.Answers.File))

			components, err := initializeAppComponents(ctx, cfg, logger, orchestrator.WithDryRun(dryRun))
			if err != nil {
				components.Shutdown(logger)
				return err
			}
			defer components.Shutdown(logger)

			outcome, err := components.Runner.Run(ctx, jobURL)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("application aborted by user signal")
				}
				return err
			}
			printOutcome(cmd, outcome)
			return nil
		},
	}

	applyCmd.Flags().StringP("answers", "a", "", "Path to the JSON answers file. (Overrides config/env)")
	applyCmd.Flags().String("profile", "", "Path to the applicant profile JSON. (Overrides config/env)")
	applyCmd.Flags().String("cv", "", "Path to the CV to upload. (Overrides config/env)")
	applyCmd.Flags().String("cover-letter", "", "Path to the cover letter. (Overrides config/env)")
	applyCmd.Flags().String("output-dir", "", "Directory for run artifacts. (Overrides config/env)")
	applyCmd.Flags().Bool("dry-run", false, "Resolve answers and report planned actions without touching the form.")
	applyCmd.Flags().Bool("headful", false, "Run the browser with a visible window.")

	return applyCmd
}

// printOutcome renders the terminal state of one run for the user.
func printOutcome(cmd *cobra.Command, outcome *orchestrator.Outcome) {
	out := cmd.OutOrStdout()
	switch {
	case outcome.Applied:
		fmt.Fprintf(out, "\nApplied to %s\n", outcome.JobName)
		if outcome.Artifact != "" {
			fmt.Fprintf(out, "Artifact: %s\n", outcome.Artifact)
		}
	case outcome.Reason == orchestrator.ReasonDryRun:
		fmt.Fprintf(out, "\nDry run for %s; planned actions:\n", outcome.JobName)
		for _, step := range outcome.Steps {
			fmt.Fprintf(out, "  - %s\n", step)
		}
	default:
		fmt.Fprintf(out, "\nNot applied to %s (%s): %s\n", outcome.JobName, outcome.Reason, outcome.Detail)
		if outcome.Reason == orchestrator.ReasonUserInputMissing {
			fmt.Fprintln(out, "Review the pending questions in the output directory, update the answers file, and re-run.")
		}
	}
}
