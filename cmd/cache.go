package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/specter-cli/internal/observability"
	"github.com/xkilldash9x/specter-cli/internal/replay"
)

// newCacheCmd creates the `cache` command group.
func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manages the replay trace cache",
	}
	cacheCmd.AddCommand(newCacheClearCmd())
	return cacheCmd
}

func newCacheClearCmd() *cobra.Command {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Deletes cached traces for the current project",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag("cache.project", cmd.Flags().Lookup("project"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			if err := viper.Unmarshal(cfg); err != nil {
				return fmt.Errorf("failed to apply flag overrides: %w", err)
			}

			store, err := replay.NewStore(cfg.Cache, logger)
			if err != nil {
				return fmt.Errorf("failed to open cache: %w", err)
			}

			if all, _ := cmd.Flags().GetBool("all"); all {
				if err := store.Purge(); err != nil {
					return fmt.Errorf("failed to purge cache: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged the entire cache at %s\n", cfg.Cache.Dir)
				return nil
			}

			if err := store.Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared cached traces for project %q\n", cfg.Cache.Project)
			return nil
		},
	}

	clearCmd.Flags().Bool("all", false, "Delete every project's traces, not just the current one.")
	clearCmd.Flags().String("project", "", "Cache namespace to clear. (Overrides config/env)")

	return clearCmd
}
