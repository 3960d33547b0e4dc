package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nyayalabs/nyaya/internal/tui"
)

var flagSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat",
	Long: `Opens a full-screen chat bound to one session. By default a fresh
session is created; pass --session to resume an earlier one.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	chatCmd.Flags().StringVar(&flagSessionID, "session", "", "resume an existing session by ID")
	rootCmd.AddCommand(chatCmd)
}

func runChat(ctx context.Context) error {
	application, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	var sessionID uuid.UUID
	var title string
	if flagSessionID != "" {
		sessionID, err = uuid.Parse(flagSessionID)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", flagSessionID, err)
		}
		sess, err := application.Sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		title = sess.Title
	} else {
		sess, err := application.Sessions.Create(ctx, "")
		if err != nil {
			return err
		}
		sessionID = sess.ID
		title = "new session"
	}

	return tui.Run(application.Pipeline, sessionID, title)
}
