package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raysh454/scanhub/internal/queue"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue, history and report freshness",
		Long: `Print a combined snapshot: queue connection, job counts, jobs in
flight, recent history, per-type metrics and report artifacts.

An unavailable queue is shown, not treated as an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := opts.client().Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, snap)
			}

			printConnection(out, snap.Available, snap.Connection)
			fmt.Fprint(out, "Jobs: ")
			printCounts(out, snap.Counts)

			if len(snap.Queue) > 0 {
				fmt.Fprintln(out, "\nIn flight:")
				printJobs(out, snap.Queue)
			}
			if len(snap.History) > 0 {
				fmt.Fprintln(out, "\nRecent:")
				printJobs(out, snap.History)
			}
			if len(snap.MetricsByType) > 0 {
				fmt.Fprintln(out, "\nBy type:")
				for _, m := range snap.MetricsByType {
					fmt.Fprintf(out, "  %-6s total %-5d avg %dms  last %s\n",
						m.Type, m.Total, m.AvgDurationMs, formatTime(m.LastFinishedAt))
				}
			}
			fmt.Fprintln(out, "\nReports:")
			printReports(out, snap.Reports)
			return nil
		},
	}
}

func printConnection(w io.Writer, available bool, st queue.ConnState) {
	if available {
		fmt.Fprintf(w, "Queue: %s since %s\n", st.Phase, formatTime(&st.Since))
		return
	}
	fmt.Fprintf(w, "Queue: %s since %s\n", defaultTheme.errorText(string(st.Phase)), formatTime(&st.Since))
	if st.LastError != "" {
		fmt.Fprintf(w, "  %s\n", defaultTheme.hint(st.LastError))
	}
}
