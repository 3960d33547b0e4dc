package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nyayalabs/nyaya/internal/api"
)

var flagServeAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API over HTTP",
	Long: `Starts the HTTP server with the chat and session endpoints.
The server drains in-flight requests on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		application, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		server, err := api.NewServer(api.ServerConfig{
			Logger:   application.Logger,
			Pipeline: application.Pipeline,
			Sessions: application.Sessions,
			Indexer:  application.Indexer,
			Pool:     application.Pool,
		})
		if err != nil {
			return err
		}

		addr := flagServeAddr
		if addr == "" {
			addr = application.Config.ServeAddr
		}
		return server.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
