package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tsubouchi/intelligence-agent-maker/internal/config"
)

var envName string

var rootCmd = &cobra.Command{
	Use:   "specdex",
	Short: "Generate, store and search software design documents",
	Long: `specdex generates design documents from short ideas, extracts structured
metadata from them and serves metadata, vector, text and hybrid search over
the library. Without a subcommand it runs the HTTP API.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", config.GetEnv(),
		"config environment (reads config/<env>.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
