package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/ishe/pkg/server"
)

var serveConfigFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend HTTP server",
	Long: `Run the backend: session minting, SDP relay, conversation storage
and recording upload.

Settings come from the YAML file given by --config, then .env, then the
environment (OPENAI_API_KEY, SUPABASE_JWT_SECRET, DATABASE_URL, PORT, ...).

Example:
  ishe serve --config server.yaml
  PORT=8080 CONVERSATION_STORE=sqlite ishe serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := server.Load(serveConfigFile)
		if err != nil {
			return err
		}
		logger := server.NewLogger(cfg.Log, os.Stdout)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := server.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer srv.Close()

		return server.ListenAndServe(ctx, cfg.Server.Addr(), srv.Handler(), cfg.Server.ShutdownTimeout, logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigFile, "config", "", "server config file (YAML)")
}
