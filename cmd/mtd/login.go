package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tasksync/mtd/internal/auth"
	"github.com/tasksync/mtd/internal/config"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the remote task service",
	Long: `Runs the device-code sign-in flow and caches the resulting token.
Subsequent commands refresh the token transparently until it is
revoked, after which login must be run again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load()
		if err != nil {
			return err
		}
		if settings.ClientID == "" {
			return fmt.Errorf("auth.client-id is not configured; register an application and add its client id to .mtd/config.yaml")
		}
		tokenDir, err := auth.DefaultTokenDir()
		if err != nil {
			return err
		}
		tokens := auth.NewManager(settings.ClientID, settings.Tenant, tokenDir)

		err = tokens.Login(cmd.Context(), func(verificationURI, userCode string) {
			fmt.Printf("To sign in, open %s and enter the code %s\n",
				color.CyanString(verificationURI), color.YellowString(userCode))
			fmt.Println("Waiting for you to complete sign-in...")
		})
		if err != nil {
			return err
		}
		color.Green("✓ signed in; token cached in %s", tokenDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
