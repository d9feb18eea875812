package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"waypoint/internal/models"
)

func init() {
	rootCmd.AddCommand(actionsCmd)
	actionsCmd.AddCommand(actionsPendingCmd, actionsHistoryCmd, actionsShowCmd, actionsApproveCmd, actionsDeclineCmd)

	actionsHistoryCmd.Flags().Int("limit", 50, "maximum number of actions")
	for _, c := range []*cobra.Command{actionsApproveCmd, actionsDeclineCmd} {
		c.Flags().String("by", os.Getenv("USER"), "who is deciding")
	}
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Inspect and decide actions",
}

var actionsPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List actions waiting for approval",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			actions, err := a.orch.Pending(ctx)
			if err != nil {
				return err
			}
			if len(actions) == 0 {
				fmt.Println("No pending actions.")
				return nil
			}
			printActions(os.Stdout, actions)
			return nil
		})
	},
}

var actionsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent actions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(func(ctx context.Context, a *app) error {
			actions, err := a.orch.History(ctx, limit)
			if err != nil {
				return err
			}
			printActions(os.Stdout, actions)
			return nil
		})
	},
}

var actionsShowCmd = &cobra.Command{
	Use:   "show <action-id>",
	Short: "Show an action and its audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			detail, err := a.orch.Action(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(detail)
		})
	},
}

var actionsApproveCmd = &cobra.Command{
	Use:   "approve <action-id>",
	Short: "Approve a pending action and execute it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		return withApp(func(ctx context.Context, a *app) error {
			act, err := a.orch.Approve(ctx, args[0], by)
			if err != nil {
				return err
			}
			printOutcome(os.Stdout, act)
			return nil
		})
	},
}

var actionsDeclineCmd = &cobra.Command{
	Use:   "decline <action-id>",
	Short: "Decline a pending action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		return withApp(func(ctx context.Context, a *app) error {
			act, err := a.orch.Decline(ctx, args[0], by)
			if err != nil {
				return err
			}
			printOutcome(os.Stdout, act)
			return nil
		})
	},
}

func printActions(out io.Writer, actions []models.Action) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTICK\tAGENT\tTYPE\tTARGET\tRISK\tSTATUS")
	for _, a := range actions {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			a.ActionID, a.Tick, a.AgentID, a.ActionType, a.Payload.Target(), a.Risk, a.Status)
	}
	w.Flush()
}

func printOutcome(out io.Writer, a *models.Action) {
	fmt.Fprintf(out, "%s: %s", a.ActionID, a.Status)
	switch {
	case a.Error != "":
		fmt.Fprintf(out, " (%s)", a.Error)
	case a.OrderID != "":
		fmt.Fprintf(out, " (order %s)", a.OrderID)
	}
	fmt.Fprintln(out)
}

func sortedStatuses(counts map[models.ActionStatus]int) []models.ActionStatus {
	out := make([]models.ActionStatus, 0, len(counts))
	for st := range counts {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
