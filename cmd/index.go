package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nyayalabs/nyaya/internal/rag"
)

var flagDocsDir string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the statute index",
}

var indexAddCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Ingest documents into the index",
	Long: `Loads supported files (.txt, .md, .pdf) into the index, splitting
each into overlapping chunks and storing the embeddings. With a directory
(or no argument) every supported file inside it is ingested; with a single
file only that file is. Chunks that are already indexed are skipped, so
re-running is cheap.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		application, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		target := docsDir(application.Config.DocsDir)
		if len(args) == 1 {
			target = args[0]
		}
		info, err := os.Stat(target)
		if err != nil {
			return err
		}

		var result *rag.IndexResult
		if info.IsDir() {
			result, err = application.Indexer.Index(ctx, target)
		} else {
			result, err = application.Indexer.IndexFile(ctx, target)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"Indexed %d files: %d chunks, %d new, in %s\n",
			result.Files, result.Chunks, result.Inserted, result.Elapsed.Round(time.Millisecond))
		if result.Skipped > 0 || result.Failed > 0 {
			fmt.Fprintf(cmd.OutOrStdout(),
				"Passed over %d unsupported files, %d failed to load\n",
				result.Skipped, result.Failed)
		}
		return nil
	},
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Purge the index and ingest from scratch",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		application, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		result, err := application.Indexer.Rebuild(ctx, docsDir(application.Config.DocsDir))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"Rebuilt index from %d files: %d chunks in %s\n",
			result.Files, result.Chunks, result.Elapsed.Round(time.Millisecond))
		return nil
	},
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index size per source file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		application, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		status, err := application.Indexer.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d chunks indexed\n", status.Chunks)
		for _, src := range status.Sources {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-40s %d chunks\n", src.Source, src.Chunks)
		}
		return nil
	},
}

func docsDir(configured string) string {
	if flagDocsDir != "" {
		return flagDocsDir
	}
	return configured
}

func init() {
	indexCmd.PersistentFlags().StringVar(&flagDocsDir, "dir", "", "documents directory (overrides config)")
	indexCmd.AddCommand(indexAddCmd, indexRebuildCmd, indexStatusCmd)
	rootCmd.AddCommand(indexCmd)
}
