package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tasksync/mtd/internal/auth"
	"github.com/tasksync/mtd/internal/config"
	"github.com/tasksync/mtd/internal/docstore"
	"github.com/tasksync/mtd/internal/engine"
	"github.com/tasksync/mtd/internal/mapstore"
	"github.com/tasksync/mtd/internal/task"
	"github.com/tasksync/mtd/internal/todoapi"
)

var (
	jsonOutput bool
	vaultFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "mtd",
	Short: "mtd - Sync markdown task documents with remote to-do lists",
	Long: `Keeps human-edited markdown task documents synchronized with remote
to-do collections. Documents bind to collections via front matter;
individual tasks route to collections via configured tags. Both sides
may be edited concurrently; reconciliation merges them per task.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Flags win over config file and environment.
		if !cmd.Flags().Changed("json") {
			jsonOutput = config.GetBool("json")
		}
		if vaultFlag != "" {
			config.Set("vault", vaultFlag)
		}
	},
}

// app bundles the wired collaborators every syncing command needs.
type app struct {
	settings *config.Settings
	store    *mapstore.Store
	vault    *docstore.Store
	client   *todoapi.Client
	engine   *engine.Context
}

// buildApp loads settings and wires store, vault, auth, client and
// engine together. logf receives engine diagnostics.
func buildApp(logf func(string, ...interface{})) (*app, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	if settings.ClientID == "" {
		return nil, fmt.Errorf("auth.client-id is not configured; add it to your .mtd/config.yaml")
	}

	tokenDir, err := auth.DefaultTokenDir()
	if err != nil {
		return nil, err
	}
	tokens := auth.NewManager(settings.ClientID, settings.Tenant, tokenDir)

	store, err := mapstore.Open(settings.StatePath)
	if err != nil {
		return nil, err
	}
	vault := docstore.New(settings.VaultPath)

	scrubber := &task.Parser{Tags: scrubTags(settings)}
	client := todoapi.New(settings.APIBase, tokens, scrubber.ScrubTitle)

	eng := engine.NewContext(store, client, vault, engine.Options{
		DeletionBehavior:    settings.DeletionBehavior,
		FetchLimit:          settings.FetchLimit,
		PullTag:             settings.PullTag,
		PullTagWithListName: settings.PullTagWithListName,
		Routes:              settings.Routes,
	}, logf)

	return &app{settings: settings, store: store, vault: vault, client: client, engine: eng}, nil
}

// scrubTags lists every tag the client must strip from outgoing titles.
func scrubTags(settings *config.Settings) []string {
	var tags []string
	for _, r := range settings.Routes {
		tags = append(tags, r.Tag)
	}
	if settings.PullTag != "" {
		tags = append(tags, settings.PullTag)
	}
	return tags
}

func stderrLogf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func outputJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func main() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&vaultFlag, "vault", "", "Vault root directory (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
