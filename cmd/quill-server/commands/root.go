// Package commands provides the CLI commands for the quill server.
package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information set at build time
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel  string
	prettyLog bool
)

var rootCmd = &cobra.Command{
	Use:   "quill-server",
	Short: "Quill - workspace agent session runtime",
	Long: `Quill runs AI agent sessions against versioned workspaces. Each
session is an actor with its own lifecycle, event stream, and tool
sandbox, exposed over an HTTP API with SSE streaming.

Run 'quill-server serve' to start the server.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	cobra.OnInitialize(func() {
		// Best effort; a missing .env is not an error.
		_ = godotenv.Load()
	})

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLog, "pretty-log", false, "Human-readable console logs")

	rootCmd.SetVersionTemplate(fmt.Sprintf("quill-server %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
