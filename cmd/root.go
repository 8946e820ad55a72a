// Package cmd wires the vulcan command line.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vulcan",
	Short: "Vulcan - AI assistant backend",
	Long: `Vulcan is an AI assistant backend. It classifies each incoming
message, routes it to the Birmingham tool agent, a knowledge base, or
general chat, and streams the reply over HTTP while persisting the
conversation in sessions.

Run "vulcan serve" to start the HTTP API server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
