package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tasksync/mtd/internal/engine"
)

var syncCmd = &cobra.Command{
	Use:   "sync [document]",
	Short: "Run a full reconciliation pass",
	Long: `Runs a full two-way reconciliation pass: local edits and deletions are
pushed, remote changes are merged back, new tasks are created on
whichever side is missing them. With no argument every document bound
to a collection via front matter is synced.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(stderrLogf)
		if err != nil {
			return err
		}

		var targets []string
		if len(args) == 1 {
			targets = []string{filepath.ToSlash(args[0])}
		} else {
			bound, err := app.vault.BoundDocuments()
			if err != nil {
				return err
			}
			for _, d := range bound {
				targets = append(targets, d.Path)
			}
		}
		if len(targets) == 0 {
			fmt.Println("No documents are bound to a collection; add an mtd-lists front-matter key.")
			return nil
		}

		results := make(map[string]*engine.Summary, len(targets))
		var failed int
		for _, path := range targets {
			sum, err := app.engine.RunFullSync(cmd.Context(), path)
			if err != nil {
				failed++
				color.Red("✗ %s: %v", path, err)
				continue
			}
			results[path] = sum
			if !jsonOutput {
				color.Green("✓ %s: %s", path, sum)
			}
		}
		if jsonOutput {
			outputJSON(results)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d documents failed to sync", failed, len(targets))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
