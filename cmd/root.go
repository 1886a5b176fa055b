package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "authserver",
	Short: "Identity and credential lifecycle service",
	Long: `authserver manages account signup, credential validation, OAuth
federation, bearer-token issuance, and password resets.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
