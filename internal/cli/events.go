package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewEventsCmd создаёт группу команд для уведомлений об изменении событий.
func NewEventsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tenantID, accountID int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Notify the scheduler about calendar event changes",
	}

	cmd.PersistentFlags().IntVar(&tenantID, "tenant", 0, "Tenant ID")
	cmd.PersistentFlags().IntVar(&accountID, "account", 0, "Account ID")
	cmd.MarkPersistentFlagRequired("tenant")
	cmd.MarkPersistentFlagRequired("account")

	cmd.AddCommand(
		newEventsChangedCmd(clientFn, outputFn, &tenantID, &accountID),
		newEventsDeleteCmd(clientFn, outputFn, &tenantID, &accountID),
	)

	return cmd
}

func newEventsChangedCmd(clientFn func() *Client, outputFn func() *Output, tenantID, accountID *int) *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   "changed EVENT_ID...",
		Short: "Reschedule alarms of created or updated events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := clientFn().EventsChanged(cmd.Context(), *tenantID, *accountID, EventsChangedRequest{
				EventIDs: args,
				Folder:   folder,
			})
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Rescheduling requested for %d event(s)", resp.Events))
			out.Print([]string{"EVENTS"}, [][]string{{strconv.Itoa(resp.Events)}}, resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "Calendar folder of the events")

	return cmd
}

func newEventsDeleteCmd(clientFn func() *Client, outputFn func() *Output, tenantID, accountID *int) *cobra.Command {
	return &cobra.Command{
		Use:   "delete EVENT_ID",
		Short: "Cancel scheduled alarms of a deleted event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := clientFn().DeleteEvent(cmd.Context(), *tenantID, *accountID, args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Event %s: %d task(s) cancelled", args[0], resp.Cancelled))
			out.Print([]string{"CANCELLED"}, [][]string{{strconv.Itoa(resp.Cancelled)}}, resp)
			return nil
		},
	}
}
