// cmd/discover.go
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/AlperenTurkmen/job-finder-sub001/api/schemas"
	"github.com/AlperenTurkmen/job-finder-sub001/internal/observability"
)

// newDiscoverCmd creates and configures the `discover` command.
func newDiscoverCmd() *cobra.Command {
	discoverCmd := &cobra.Command{
		Use:   "discover [job-urls...]",
		Short: "Extracts form schemas without submitting",
		Long: "Opens each job URL, detects the apply flow, and writes the extracted " +
			"field schema as JSON. No form is filled and nothing is submitted.",
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
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
			if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			components, err := initializeAppComponents(ctx, cfg, logger)
			if err != nil {
				components.Shutdown(logger)
				return err
			}
			defer components.Shutdown(logger)

			failed := 0
			for _, raw := range args {
				jobURL := normalizeJobURL(raw)
				result, err := components.Runner.Discover(ctx, jobURL)
				if err != nil {
					if ctx.Err() != nil {
						return fmt.Errorf("discovery aborted by user signal")
					}
					logger.Error("Discovery failed", zap.String("url", jobURL), zap.Error(err))
					failed++
					continue
				}

				path, err := writeSchemaArtifact(cfg.Output.Dir, result)
				if err != nil {
					logger.Error("Failed to write schema", zap.String("url", jobURL), zap.Error(err))
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d fields, %d apply methods -> %s\n",
					result.JobName, len(result.Fields), len(result.ApplyMethods), path)
			}

			if failed > 0 {
				return fmt.Errorf("discovery failed for %d of %d URLs", failed, len(args))
			}
			return nil
		},
	}

	discoverCmd.Flags().String("output-dir", "", "Directory for schema artifacts. (Overrides config/env)")
	discoverCmd.Flags().Bool("headful", false, "Run the browser with a visible window.")

	return discoverCmd
}

// writeSchemaArtifact persists one extracted schema and returns its path.
func writeSchemaArtifact(dir string, result *schemas.NavigatorResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	path := filepath.Join(dir, result.JobName+"_schema.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write schema file: %w", err)
	}
	return path, nil
}
