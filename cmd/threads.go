package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Inspect and repair cached review threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		return threadsListRun(cmd)
	},
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached review-to-thread mappings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return threadsListRun(cmd)
	},
}

var threadsForgetCmd = &cobra.Command{
	Use:   "forget <review-id>",
	Short: "Drop a cached thread mapping so the next event opens a fresh thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid review id %q", args[0])
		}

		if dryRun {
			ui.DryRunMsg("Would forget thread mapping for review %d", reviewID)
			return nil
		}

		s, err := getStore()
		if err != nil {
			return err
		}
		if err := s.DeleteThread(cmd.Context(), reviewID); err != nil {
			return err
		}
		ui.Success("Forgot thread for review %d", reviewID)
		return nil
	},
}

func threadsListRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	threads, err := s.ListThreads(cmd.Context())
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		ui.Info("No cached threads")
		return nil
	}

	table := ui.Table([]string{"Review", "Thread", "Cached"})
	for _, t := range threads {
		table.Append([]string{
			strconv.Itoa(t.ReviewID),
			t.ThreadTS,
			t.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	return nil
}

func init() {
	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsForgetCmd)
	rootCmd.AddCommand(threadsCmd)
}
