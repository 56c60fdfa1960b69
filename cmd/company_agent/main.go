// Package main provides the entry point for the company information agent.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. configPath is shared by every
// subcommand through the persistent --config flag.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "company_agent",
		Short: "Company information chatbot",
		Long: `company_agent answers questions about a catalog of companies. Messages are routed by a
language model either to a company lookup (exact, substring, then fuzzy name matching) or to a
general answer over the whole catalog. Companies are managed over a REST API or imported from CSV.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a yaml or json config file (environment variables override it)")

	root.AddCommand(
		newServeCmd(&configPath),
		newImportCmd(&configPath),
		newAskCmd(&configPath),
		newHistoryCmd(&configPath),
		newHashPasswordCmd(&configPath),
	)
	return root
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
