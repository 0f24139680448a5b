package cmd

import (
	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect and repair cached user identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		return usersListRun(cmd)
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached Swarm-to-Slack identity mappings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return usersListRun(cmd)
	},
}

var usersForgetCmd = &cobra.Command{
	Use:   "forget <user-id>",
	Short: "Drop a cached identity so the next mention looks it up again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := args[0]

		if dryRun {
			ui.DryRunMsg("Would forget identity mapping for user %s", userID)
			return nil
		}

		s, err := getStore()
		if err != nil {
			return err
		}
		if err := s.DeleteUserMapping(cmd.Context(), userID); err != nil {
			return err
		}
		ui.Success("Forgot identity for user %s", userID)
		return nil
	},
}

func usersListRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	users, err := s.ListUserMappings(cmd.Context())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		ui.Info("No cached identities")
		return nil
	}

	table := ui.Table([]string{"User", "Slack ID", "Cached"})
	for _, u := range users {
		table.Append([]string{
			u.UserID,
			u.SlackID,
			u.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	return nil
}

func init() {
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersForgetCmd)
	rootCmd.AddCommand(usersCmd)
}
