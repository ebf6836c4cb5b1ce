package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/api/schemas"
	"github.com/xkilldash9x/specter-cli/internal/llmclient"
	"github.com/xkilldash9x/specter-cli/internal/observability"
	"github.com/xkilldash9x/specter-cli/internal/orchestrator"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [suite files...]",
		Short: "Runs YAML test suites against a live browser",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so CLI values override config file and env vars.
			if err := viper.BindPFlag("runner.turn_budget", cmd.Flags().Lookup("turn-budget")); err != nil {
				return err
			}
			if err := viper.BindPFlag("cache.project", cmd.Flags().Lookup("project")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-unmarshal so the flag bindings from PreRunE take effect.
			if err := viper.Unmarshal(cfg); err != nil {
				return fmt.Errorf("failed to apply flag overrides: %w", err)
			}
			if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
				cfg.Cache.Enabled = false
			}

			model, err := llmclient.New(ctx, cfg.Model, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize model client: %w", err)
			}

			runner := orchestrator.NewRunner(cfg, model, logger)

			var failedFiles int
			for _, path := range args {
				result, err := runner.RunSuiteFile(ctx, path)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return fmt.Errorf("run aborted by user signal")
					}
					// A broken file fails itself, never the whole invocation.
					logger.Error("Suite file failed to run", zap.String("file", path), zap.Error(err))
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL  %s: %v\n", path, err)
					failedFiles++
					continue
				}

				printFileResult(cmd, result)
				if !result.Passed() {
					failedFiles++
				}
			}

			if failedFiles > 0 {
				return fmt.Errorf("%d of %d suite files failed", failedFiles, len(args))
			}
			return nil
		},
	}

	runCmd.Flags().Bool("no-cache", false, "Disable the replay cache for this run.")
	runCmd.Flags().Int("turn-budget", 0, "Maximum model round-trips per test. (Overrides config/env)")
	runCmd.Flags().String("project", "", "Cache namespace for this checkout. (Overrides config/env)")

	return runCmd
}

// printFileResult renders one suite's outcome, one line per test.
func printFileResult(cmd *cobra.Command, result schemas.FileResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.String())
	for _, res := range result.Results {
		status := "FAIL"
		if res.Verdict.Pass() {
			status = "PASS"
		}
		suffix := ""
		if res.Cached {
			suffix = " (cached)"
		}
		fmt.Fprintf(out, "  %s  %s%s: %s\n", status, res.Name, suffix, res.Verdict.Reason)
	}
}
