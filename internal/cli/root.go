// Package cli provides the command-line interface for scanhub.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/raysh454/scanhub/internal/client"
)

// Version is set at build time.
var Version = "0.1.0"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	serverURL  string
	owner      string
	role       string
	token      string
	jsonOut    bool
}

// client builds an API client for the configured identity. A token wins
// over the owner header.
func (o *globalOptions) client() *client.Client {
	var opts []client.Option
	if o.token != "" {
		opts = append(opts, client.WithToken(o.token))
	} else {
		if o.owner != "" {
			opts = append(opts, client.WithOwner(o.owner))
		}
		if o.role != "" {
			opts = append(opts, client.WithRole(o.role))
		}
	}
	return client.New(o.serverURL, opts...)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "scanhub",
		Short: "Asynchronous security scan orchestration",
		Long: `scanhub queues static (SAST) and dynamic (DAST) scans, runs them with a
bounded worker, keeps the latest report of each kind on disk and turns
findings into alerts you can triage.

Run "scanhub serve" to start the API and worker; the other commands talk
to a running server.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", os.Getenv("SCANHUB_CONFIG"), "path to a YAML config file")
	pf.StringVarP(&opts.serverURL, "server", "s", "", "API base URL (default $SCANHUB_SERVER_URL or http://localhost:8080)")
	pf.StringVarP(&opts.owner, "owner", "o", os.Getenv("SCANHUB_OWNER"), "owner id sent as X-Owner-ID when no token is set")
	pf.StringVar(&opts.role, "role", "", "role sent as X-Role (user or admin)")
	pf.StringVar(&opts.token, "token", os.Getenv("SCANHUB_TOKEN"), "bearer token for servers with a JWT secret")
	pf.BoolVar(&opts.jsonOut, "json", false, "print raw JSON")

	root.AddCommand(
		newServeCmd(opts),
		newSubmitCmd(opts),
		newJobCmd(opts),
		newStatusCmd(opts),
		newReportsCmd(opts),
		newAlertsCmd(opts),
		newQueueCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}
