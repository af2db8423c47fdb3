package main

import (
	"fmt"

	"ispl/cmd/ispl/ui"
	"ispl/internal/api"
	"ispl/internal/workflowlog"

	"github.com/spf13/cobra"
)

var (
	logsWorkflow string
	logsLimit    int
	logsIDs      bool
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Inspect backend workflow runs",
}

var workflowLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recorded workflow steps",
	Long: `Show recorded workflow steps, newest first as the backend returns them.

--workflow narrows the output to one run; --ids lists the distinct run ids.`,
	Args: cobra.NoArgs,
	RunE: runWorkflowLogs,
}

func init() {
	workflowLogsCmd.Flags().StringVarP(&logsWorkflow, "workflow", "w", "", "Only show this workflow id")
	workflowLogsCmd.Flags().IntVarP(&logsLimit, "limit", "n", workflowLogLimit, "Maximum number of entries to fetch")
	workflowLogsCmd.Flags().BoolVar(&logsIDs, "ids", false, "List workflow ids instead of steps")
	workflowCmd.AddCommand(workflowLogsCmd)
}

func runWorkflowLogs(cmd *cobra.Command, args []string) error {
	return withSession(func(a *app) error {
		ctx, cancel := commandContext()
		defer cancel()

		entries, err := a.client.WorkflowLogs(ctx, api.LogQuery{Limit: logsLimit})
		if err != nil {
			return describe(err)
		}
		out := cmd.OutOrStdout()
		if logsIDs {
			for _, id := range workflowlog.WorkflowIDs(entries) {
				fmt.Fprintln(out, id)
			}
			return nil
		}
		entries = workflowlog.Filter(entries, logsWorkflow)
		fmt.Fprint(out, ui.LogTable(entries).View(styles(), "No workflow runs recorded."))
		return nil
	})
}
