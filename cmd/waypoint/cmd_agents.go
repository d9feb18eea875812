package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"waypoint/internal/evaluation"
)

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.AddCommand(agentsListCmd, agentsStartCmd, agentsStopCmd)
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage agents",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents with their scorecards",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			list := a.registry.List()
			history, err := a.orch.History(ctx, 10000)
			if err != nil {
				return err
			}
			cards := evaluation.ScoreAll(list, history)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tACTIVE\tPROPOSED\tPENDING\tEXECUTED\tFAILED\tAPPROVAL")
			for i, ag := range list {
				sc := cards[i]
				fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%d\t%d\t%d\t%.0f%%\n",
					ag.AgentID, ag.AgentType, ag.IsActive,
					sc.Proposed, sc.Pending, sc.Executed, sc.Failed, sc.ApprovalRate*100)
			}
			return w.Flush()
		})
	},
}

var agentsStartCmd = &cobra.Command{
	Use:   "start <agent-id>",
	Short: "Activate an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  setAgentActive(true),
}

var agentsStopCmd = &cobra.Command{
	Use:   "stop <agent-id>",
	Short: "Deactivate an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  setAgentActive(false),
}

func setAgentActive(active bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			ag, err := a.registry.SetActive(ctx, args[0], active)
			if err != nil {
				return err
			}
			state := "stopped"
			if ag.IsActive {
				state = "started"
			}
			fmt.Printf("Agent %s %s.\n", ag.AgentID, state)
			return nil
		})
	}
}
