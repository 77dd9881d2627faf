package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raysh454/scanhub/internal/client"
)

func newQueueCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or reset the job queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show queue connection and jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := opts.client().QueueStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("queue status: %w", err)
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, st)
			}
			printConnection(out, st.Available, st.Connection)
			fmt.Fprint(out, "Jobs: ")
			printCounts(out, st.Counts)
			if len(st.Queue) > 0 {
				fmt.Fprintln(out)
				printJobs(out, st.Queue)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Drop the queue connection and reconnect (admin)",
		Long: `Ask the server to discard its cached queue connection and dial again.
Requires the admin role.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().ResetQueue(cmd.Context())
			out := cmd.OutOrStdout()
			if resp != nil {
				if opts.jsonOut {
					if perr := printJSON(out, resp); perr != nil {
						return perr
					}
				} else {
					printConnection(out, resp.Available, resp.Connection)
				}
			}
			if err != nil {
				if client.IsUnavailable(err) {
					return fmt.Errorf("queue still unavailable: %w", err)
				}
				return fmt.Errorf("reset queue: %w", err)
			}
			return nil
		},
	})
	return cmd
}
