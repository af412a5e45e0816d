package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tasksync/mtd/internal/config"
	"github.com/tasksync/mtd/internal/engine"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the vault and sync continuously",
	Long: `Runs until interrupted. Edits to any markdown document trigger a
debounced local push; a periodic timer runs a full two-way sync over
every bound document. Overlapping triggers are coalesced: only one
pass runs at a time. Diagnostics go to the rotating log file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load()
		if err != nil {
			return err
		}
		logFile, logf := setupWatchLogger(settings.LogFile)
		defer logFile.Close()

		app, err := buildApp(logf)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fullSyncAll := func() {
			bound, err := app.vault.BoundDocuments()
			if err != nil {
				logf("enumerating bound documents: %v", err)
				return
			}
			for _, d := range bound {
				sum, err := app.engine.RunFullSync(ctx, d.Path)
				switch {
				case errors.Is(err, engine.ErrPassRunning):
					logf("full sync of %s skipped, pass in progress", d.Path)
				case err != nil:
					logf("full sync of %s: %v", d.Path, err)
				default:
					logf("full sync of %s: %s", d.Path, sum)
				}
			}
		}

		debouncer := newDocDebouncer(app.settings.PushDebounce, func(path string) {
			sum, err := app.engine.RunLocalPushOnly(ctx, path)
			switch {
			case errors.Is(err, engine.ErrPassRunning):
				logf("push of %s skipped, pass in progress", path)
			case err != nil:
				logf("push of %s: %v", path, err)
			default:
				logf("push of %s: %s", path, sum)
			}
		})

		watcher, err := app.vault.Watch(ctx, debouncer.Touch, logf)
		if err != nil {
			return err
		}
		defer watcher.Close()

		color.Green("✓ watching %s (push debounce %s, full sync every %s)",
			app.settings.VaultPath, app.settings.PushDebounce, app.settings.SyncInterval)
		logf("watch started on %s", app.settings.VaultPath)

		fullSyncAll()
		ticker := time.NewTicker(app.settings.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fullSyncAll()
			case <-ctx.Done():
				debouncer.Stop()
				logf("watch stopped")
				return nil
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
