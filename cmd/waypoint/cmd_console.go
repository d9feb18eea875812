package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"waypoint/internal/console"
)

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().String("url", envOr("WAYPOINT_URL", "http://localhost:8080"), "waypoint server URL")
	consoleCmd.Flags().String("token", os.Getenv("WAYPOINT_TOKEN"), "bearer token for decision endpoints")
	consoleCmd.Flags().String("by", os.Getenv("USER"), "who is deciding (ignored when a token is set)")
	consoleCmd.Flags().Duration("refresh", 2*time.Second, "poll interval")
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive approval queue for a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		token, _ := cmd.Flags().GetString("token")
		by, _ := cmd.Flags().GetString("by")
		refresh, _ := cmd.Flags().GetDuration("refresh")

		client := console.NewClient(url, token, by)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Health(ctx); err != nil {
			return fmt.Errorf("waypoint server at %s is not reachable: %w", url, err)
		}
		return console.Run(client, refresh)
	},
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
