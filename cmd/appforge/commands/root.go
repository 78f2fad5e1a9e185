// Package commands provides the CLI commands for AppForge.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "appforge",
	Short: "AppForge - agent runtime for AI app building",
	Long: `AppForge runs the agent execution runtime behind an AI app builder:
it drives model turns, routes every tool call through security, SSRF, and
rate-limit guards, and streams typed progress events to clients.

Run 'appforge serve' to start the HTTP API.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("appforge %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
