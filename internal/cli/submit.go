package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raysh454/scanhub/internal/model"
	"github.com/raysh454/scanhub/internal/server"
)

func newSubmitCmd(opts *globalOptions) *cobra.Command {
	var (
		jobType  string
		target   string
		scanType string
		delay    time.Duration
		wait     bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit [sast|dast]",
		Short: "Queue a scan",
		Long: `Queue a static (sast) or dynamic (dast) scan and print the job id.

Examples:
  scanhub submit sast
  scanhub submit --type dast --target https://app.example.com
  scanhub submit dast --target https://app.example.com --scan-type full
  scanhub submit dast --target https://app.example.com --delay 10m --wait`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(model.JobTypeSAST), string(model.JobTypeDAST)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if jobType != "" && jobType != args[0] {
					return fmt.Errorf("scan type given twice: %q and --type %q", args[0], jobType)
				}
				jobType = args[0]
			}
			if jobType == "" {
				return errors.New("scan type required: sast or dast")
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			c := opts.client()

			resp, err := c.SubmitScan(ctx, server.ScanRequest{
				Type:         model.JobType(jobType),
				Target:       target,
				ScanType:     model.ScanMode(scanType),
				DelaySeconds: int(delay / time.Second),
			})
			if err != nil {
				return fmt.Errorf("submit scan: %w", err)
			}
			if !wait {
				if opts.jsonOut {
					return printJSON(out, resp)
				}
				fmt.Fprintf(out, "Queued %s scan: %s (%s)\n", jobType, resp.JobID, resp.State)
				fmt.Fprintln(out, defaultTheme.hint("Follow it with: scanhub job "+resp.JobID))
				return nil
			}

			job, err := waitForJob(ctx, c, resp.JobID, interval)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(out, job)
			}
			printJob(out, job)
			if job.State == model.JobFailed {
				return fmt.Errorf("job %s failed", job.ID)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&jobType, "type", "", "scan type: sast or dast")
	f.StringVarP(&target, "target", "t", "", "URL to scan (dast only)")
	f.StringVar(&scanType, "scan-type", string(model.ScanModeSimple), "dast scan depth: simple or full")
	f.DurationVar(&delay, "delay", 0, "run no earlier than this long from now")
	f.BoolVarP(&wait, "wait", "w", false, "poll until the job finishes")
	f.DurationVar(&interval, "poll", 2*time.Second, "poll interval for --wait")
	return cmd
}

func newJobCmd(opts *globalOptions) *cobra.Command {
	var (
		wait     bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := opts.client()

			var (
				job *model.JobSummary
				err error
			)
			if wait {
				job, err = waitForJob(ctx, c, args[0], interval)
			} else {
				job, err = c.Job(ctx, args[0])
			}
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), job)
			}
			printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until the job finishes")
	cmd.Flags().DurationVar(&interval, "poll", 2*time.Second, "poll interval for --wait")
	return cmd
}
