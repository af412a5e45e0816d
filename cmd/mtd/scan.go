package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan every document for tagged tasks and route them",
	Long: `Sweeps the whole vault for tasks carrying a configured routing tag.
Unsynced tagged tasks are created in the tag's collection and marked in
place; previously-synced tasks whose tag now routes elsewhere are moved
(the document keeps its identity marker).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(stderrLogf)
		if err != nil {
			return err
		}
		sum, err := app.engine.ScanAndRouteAllDocuments(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(sum)
		} else {
			color.Green("✓ scan complete: %s", sum)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
