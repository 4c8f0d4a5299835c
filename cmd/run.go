package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hliang2/chatspider/api/schemas"
	"github.com/hliang2/chatspider/internal/observability"
	"github.com/hliang2/chatspider/internal/orchestrator"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Processes the chat inbox: opens each entry and extracts its detail page",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so command-line values override config/env.
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			maxEntries, err := cmd.Flags().GetInt("max-entries")
			if err != nil {
				return err
			}
			index, err := cmd.Flags().GetInt("index")
			if err != nil {
				return err
			}
			// Headless may have been overridden by the bound flag.
			appConfig.Browser.Headless = viper.GetBool("browser.headless")

			orch, err := buildOrchestrator(appConfig, logger)
			if err != nil {
				return err
			}

			var summary *schemas.BatchSummary
			if index > 0 {
				summary, err = orch.RunSingle(ctx, index)
			} else {
				summary, err = orch.Run(ctx, maxEntries)
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted by user signal")
					return fmt.Errorf("run aborted by user signal")
				}
				if errors.Is(err, orchestrator.ErrLoginRequired) {
					return fmt.Errorf("no authenticated session; run `chatspider login` first")
				}
				logger.Error("Run failed", zap.Error(err))
				return err
			}

			logger.Info("Run complete",
				zap.Int("succeeded", summary.Succeeded),
				zap.Int("failed", summary.Failed))
			fmt.Printf("\nDone. %d succeeded, %d failed.\n", summary.Succeeded, summary.Failed)
			for _, f := range summary.Failures {
				fmt.Printf("  entry %d (%s): %s\n", f.Index, f.Name, f.Reason)
			}
			return nil
		},
	}

	runCmd.Flags().IntP("max-entries", "n", 0, "Maximum number of entries to process (0 = all).")
	runCmd.Flags().IntP("index", "i", 0, "Process only the entry at this 1-based position.")
	runCmd.Flags().Bool("headless", false, "Run the browser headless. (Overrides config/env)")
	runCmd.MarkFlagsMutuallyExclusive("max-entries", "index")

	return runCmd
}
