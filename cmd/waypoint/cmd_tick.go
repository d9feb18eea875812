package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(tickCmd)
}

var tickCmd = &cobra.Command{
	Use:   "tick [count]",
	Short: "Run ticks without starting the server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := 1
		if len(args) == 1 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return fmt.Errorf("count must be a positive integer, got %q", args[0])
			}
			n = v
		}

		return withApp(func(ctx context.Context, a *app) error {
			if _, err := a.orch.Recover(ctx); err != nil {
				return err
			}
			for i := 0; i < n; i++ {
				tick, err := a.clock.Step(ctx)
				if err != nil {
					return err
				}
				st := a.clock.Status()
				if st.LastError != "" {
					fmt.Fprintf(os.Stdout, "tick %d: %s\n", tick, st.LastError)
				} else {
					fmt.Fprintf(os.Stdout, "tick %d ok\n", tick)
				}
			}

			counts, err := a.store.CountActionsByStatus(ctx)
			if err != nil {
				return err
			}
			for _, st := range sortedStatuses(counts) {
				fmt.Fprintf(os.Stdout, "  %-18s %d\n", st, counts[st])
			}
			return nil
		})
	},
}

// withApp runs fn against a freshly wired app using CLI logging.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg, false)
	ctx := context.Background()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
