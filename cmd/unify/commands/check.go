package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/unifikation/unify/pkg/handlers"
	"github.com/unifikation/unify/pkg/report"
)

// ErrPreconditions is returned when an environment check fails.
var ErrPreconditions = errors.New("preconditions not met")

func newCheckCommand(opts *options) *cobra.Command {
	var (
		commands    []string
		networkAddr string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check environment preconditions",
		Long: `Verify that the tools a run needs are on PATH, that the process is root
or can use sudo, and that the network is reachable.`,
		Example: `  # Default checks
  unify check

  # Also require flatpak, check against a different host
  unify check --command flatpak --network-addr 9.9.9.9:53`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := opts.precheck(cmd.Context(), commands, networkAddr)
			if err := opts.output(cmd.OutOrStdout(), results, func(r *report.Renderer) error {
				return r.Preconditions(results)
			}); err != nil {
				return err
			}
			if !handlers.AllOK(results) {
				return ErrPreconditions
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&commands, "command", []string{"git", "curl", "systemctl"}, "commands that must be on PATH")
	cmd.Flags().StringVar(&networkAddr, "network-addr", "1.1.1.1:53", "TCP address used to test connectivity (empty to skip)")

	return cmd
}
