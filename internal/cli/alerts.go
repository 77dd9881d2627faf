package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raysh454/scanhub/internal/client"
	"github.com/raysh454/scanhub/internal/model"
)

func newAlertsCmd(opts *globalOptions) *cobra.Command {
	var q client.AlertQuery
	var status, severity string

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List alerts extracted from scan reports",
		Long: `List your alerts, newest first.

Examples:
  scanhub alerts --status open --severity high
  scanhub alerts --job 4f6c... --limit 20
  scanhub alerts accept <alert-id>
  scanhub alerts resolve <alert-id>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q.Status = model.AlertStatus(status)
			q.Severity = model.Severity(severity)
			alerts, err := opts.client().Alerts(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("list alerts: %w", err)
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), alerts)
			}
			printAlerts(cmd.OutOrStdout(), alerts)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&status, "status", "", "filter by status: open, accepted or resolved")
	f.StringVar(&severity, "severity", "", "filter by severity: low, medium or high")
	f.StringVar(&q.JobID, "job", "", "filter by job id")
	f.IntVar(&q.Limit, "limit", 0, "maximum number of alerts")

	cmd.AddCommand(
		alertTransitionCmd(opts, "accept", model.AlertAccepted),
		alertTransitionCmd(opts, "resolve", model.AlertResolved),
	)
	return cmd
}

func alertTransitionCmd(opts *globalOptions, verb string, next model.AlertStatus) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <alert-id>",
		Short: fmt.Sprintf("Mark an alert %s", next),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.client().UpdateAlert(cmd.Context(), args[0], next)
			if err != nil {
				return fmt.Errorf("%s alert: %w", verb, err)
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), a)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Alert %s is now %s\n", a.ID, a.Status)
			return nil
		},
	}
}
