package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recent first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		application, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		sessions, err := application.Sessions.List(ctx)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
			return nil
		}
		for _, sess := range sessions {
			title := sess.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
				sess.ID, sess.UpdatedAt.Format("2006-01-02 15:04"), title)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		application, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.Sessions.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", id)
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}
