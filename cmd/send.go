package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hliang2/chatspider/internal/observability"
	"github.com/hliang2/chatspider/internal/orchestrator"
)

// newSendCmd creates and configures the `send` command.
func newSendCmd() *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Sends a message to one inbox entry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			index, err := cmd.Flags().GetInt("entry")
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")

			orch, err := buildOrchestrator(appConfig, logger)
			if err != nil {
				return err
			}

			if err := orch.Send(cmd.Context(), index, text); err != nil {
				if errors.Is(err, orchestrator.ErrLoginRequired) {
					return fmt.Errorf("no authenticated session; run `chatspider login` first")
				}
				return err
			}

			fmt.Printf("Message sent to entry %d.\n", index)
			return nil
		},
	}

	sendCmd.Flags().IntP("entry", "e", 1, "1-based index of the entry to message.")

	return sendCmd
}
