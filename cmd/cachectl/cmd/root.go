// Package cmd implements the cachectl subcommands.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cachectl",
	Short: "Inspect and warm a wasm component cache",
	Long: `cachectl talks to the same ComponentService the worker runtime embeds,
either the registry-backed remote facade or the local filesystem facade,
depending on what component_service section is configured.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a cachectl config YAML file")
	rootCmd.AddCommand(getMetadataCmd)
	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("cachectl %s (commit %s, built %s)\n", version, gitCommit, buildDate)
	},
}
