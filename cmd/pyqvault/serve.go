package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pyqvault/pyqvault/internal/config"
	"github.com/pyqvault/pyqvault/internal/home"
	"github.com/pyqvault/pyqvault/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pyqvault server",
	Long: `Start the pyqvault HTTP server.

The server connects to Postgres, runs migrations and starts the
extraction worker pool. Uploaded PDFs and rendered page images are
stored under the pyqvault home directory.

The server provides:
  - /health  - Basic server health check
  - /ready   - Readiness check (includes database status)
  - /swagger - Interactive API documentation

Examples:
  pyqvault serve                      # Start with default config
  pyqvault serve --config ./config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cfgMgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfgMgr.WatchConfig()

		srv, err := server.New(server.Config{
			ConfigManager: cfgMgr,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
