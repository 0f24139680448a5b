package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sghirate/SlackSwarmBot/internal/models"
	"github.com/Sghirate/SlackSwarmBot/internal/output"
	"github.com/Sghirate/SlackSwarmBot/internal/relay"
)

var relayCmd = &cobra.Command{
	Use:   "relay [event.json]",
	Short: "Relay a single activity event from a file or stdin",
	Long: `Relay one Swarm activity event without running the intake server.
The event is read as JSON from the given file, or from stdin when no file
is given. Useful for testing configuration and for replaying events.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}

		var event models.ActivityEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("parse event: %w", err)
		}

		if dryRun {
			ui.DryRunMsg("Would relay %s event (action %q)", event.Kind, event.Action)
			return nil
		}

		logger := newLogger()
		engine, err := buildEngine(logger)
		if err != nil {
			return err
		}

		result := engine.Process(cmd.Context(), event)
		ui.Info("Delivery %s: %s", result.DeliveryID, output.OutcomeColor(string(result.Status)))
		if result.Reason != "" {
			ui.VerboseLog("reason: %s", result.Reason)
		}
		if result.Status == relay.StatusFailed {
			if result.Err != nil {
				return result.Err
			}
			return fmt.Errorf("delivery failed: %s", result.Reason)
		}
		if result.ThreadTS != "" {
			ui.Success("Review %d -> thread %s", result.ReviewID, result.ThreadTS)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)
}
