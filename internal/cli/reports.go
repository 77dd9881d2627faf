package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newReportsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List report artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			arts, err := opts.client().Reports(cmd.Context())
			if err != nil {
				return fmt.Errorf("list reports: %w", err)
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), arts)
			}
			printReports(cmd.OutOrStdout(), arts)
			return nil
		},
	}

	var output string
	get := &cobra.Command{
		Use:   "get <type>",
		Short: "Download the latest report of a type",
		Long: `Download the latest artifact for a report type (sast or dast).
Without --output the body is written to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, contentType, err := opts.client().Report(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get report: %w", err)
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.WriteFile(output, body, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes (%s) to %s\n", len(body), contentType, output)
			return nil
		},
	}
	get.Flags().StringVarP(&output, "output", "O", "", "write the report to this file")

	diff := &cobra.Command{
		Use:   "diff <type>",
		Short: "Show how a report changed since the previous run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := opts.client().ReportDiff(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("diff report: %w", err)
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, d)
			}
			fmt.Fprintf(out, "%s: +%d -%d (%s -> %s)\n", d.Type, d.Insertions, d.Deletions,
				formatTime(&d.PreviousModified), formatTime(&d.CurrentModified))
			if d.Patch != "" {
				fmt.Fprintln(out, d.Patch)
			}
			return nil
		},
	}

	cmd.AddCommand(get, diff)
	return cmd
}
