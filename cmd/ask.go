package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and print the answer",
	Long: `Answers one question without opening the chat UI and without
touching session history. Useful for scripting:

  nyaya ask "section 27"
  nyaya ask what is the rule of estoppel`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		application, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		question := strings.Join(args, " ")
		answer, err := application.Pipeline.Ask(ctx, uuid.Nil, question)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), answer.Text)
		if len(answer.Sources) > 0 {
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Sources:")
			for _, src := range answer.Sources {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s chunk %s (relevance %.1f/10)\n",
					src.Source, src.Chunk, src.Score)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
