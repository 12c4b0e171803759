// Package cli implements the karma command-line interface using Cobra.
// Server commands run against the local store; user commands talk to a
// running server over HTTP.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "karma",
	Short: "karma - wellness activity points, streaks and badges",
	Long: `karma records completed wellness activities and keeps each user's
points ledger, daily streaks, milestones, badges and level.

Run 'karma serve' to start the API, then record activities with
'karma record USER ACTIVITY'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	serverURL  string
	jsonOutput bool
)

func init() {
	def := os.Getenv("KARMA_SERVER")
	if def == "" {
		def = "http://127.0.0.1:7420"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", def, "karma server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
