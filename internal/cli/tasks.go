package cli

import (
	"github.com/spf13/cobra"
)

// NewTasksCmd создаёт группу команд для просмотра запланированных задач.
func NewTasksCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect scheduled delivery tasks",
	}

	cmd.AddCommand(newTasksListCmd(clientFn, outputFn))

	return cmd
}

func newTasksListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListTasksOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks scheduled in the running process",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListTasks(cmd.Context(), opts)
			if err != nil {
				return err
			}

			headers := []string{"KEY", "ACTION", "DUE_AT", "FIRE_AT"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{t.Key, t.Action, t.DueAt, t.FireAt}
			}

			outputFn().Print(headers, rows, tasks)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.TenantID, "tenant", 0, "Filter by tenant ID")
	cmd.Flags().IntVar(&opts.AccountID, "account", 0, "Filter by account ID")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}
