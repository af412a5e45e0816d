package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Show the remote task collections",
	Long: `Lists every collection in the signed-in account with its id. Use the
display names in mtd-lists front matter and the ids in routing rules.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(stderrLogf)
		if err != nil {
			return err
		}
		cols, err := app.client.ListCollections(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cols)
			return nil
		}
		for _, col := range cols {
			fmt.Printf("%-40s %s\n", col.DisplayName, col.ID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listsCmd)
}
