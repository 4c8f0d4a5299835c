package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hliang2/chatspider/internal/observability"
	"github.com/hliang2/chatspider/internal/orchestrator"
)

// newLoginCmd creates and configures the `login` command.
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Opens a browser window for manual login and persists the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			// Login is interactive by definition.
			appConfig.Browser.Headless = false

			orch, err := buildOrchestrator(appConfig, logger)
			if err != nil {
				return err
			}

			if err := orch.Login(cmd.Context()); err != nil {
				if errors.Is(err, orchestrator.ErrLoginRequired) {
					return fmt.Errorf("login was not completed before the deadline")
				}
				return err
			}

			fmt.Println("Login successful; session state saved.")
			return nil
		},
	}
}
