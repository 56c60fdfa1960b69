package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import companies from a CSV file",
		Long: `Import companies from a CSV file with a header row. Recognised columns are name (required),
description, sector and financials (a JSON object). Companies whose name already exists are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.importer.Import(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("error processing CSV: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Successfully imported %d companies (%d skipped)\n", result.Created, result.Skipped)
			for _, rowErr := range result.Errors {
				fmt.Fprintln(out, rowErr)
			}
			return nil
		},
	}
}
