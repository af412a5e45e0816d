package main

import (
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tasksync/mtd/internal/engine"
)

var pushCmd = &cobra.Command{
	Use:   "push <document>",
	Short: "Push local edits and deletions without a remote fetch",
	Long: `Runs the lightweight half of a reconciliation pass: deleted lines are
propagated and edited tasks are patched remotely. Remote-side changes
are left for the next full sync. This is the pass the watcher triggers
after every edit burst.`,
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

		results := make(map[string]*engine.Summary, len(targets))
		for _, path := range targets {
			sum, err := app.engine.RunLocalPushOnly(cmd.Context(), path)
			if err != nil {
				return err
			}
			results[path] = sum
			if !jsonOutput {
				color.Green("✓ %s: %s", path, sum)
			}
		}
		if jsonOutput {
			outputJSON(results)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
}
