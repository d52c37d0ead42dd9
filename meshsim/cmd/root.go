// Package cmd provides the command-line interface of meshsim.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the meshsim command with all its sub-commands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "meshsim",
		Short: "meshsim simulates packet-switched mesh networks.",
		Long: `meshsim simulates packet-switched mesh networks tick by tick. ` +
			`Nodes discover their neighbours, measure link latencies, agree ` +
			`on a leader clock and route packets hop by hop.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "",
		"configuration file (default: meshsim.yaml in . or $HOME/.meshsim)")
	rootCmd.PersistentFlags().String("log-level", "",
		"log level: debug, info, warn or error")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newTopologyCmd())

	return rootCmd
}

// Execute runs the root command and returns the exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		return 1
	}

	return 0
}
