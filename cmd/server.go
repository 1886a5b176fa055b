package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/idvault/authserver/config"
	"github.com/idvault/authserver/internal/server"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the auth API server",
	Long: `Starts the auth API server. Usage:

	authserver server
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()

		logger, err := zap.NewProduction()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()

		srv, err := server.New(cmd.Context(), cfg, logger)
		if err != nil {
			logger.Error("failed to start server", zap.Error(err))
			os.Exit(1)
		}
		if err := srv.Start(); err != nil {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
