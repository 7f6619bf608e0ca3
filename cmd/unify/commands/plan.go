package commands

import (
	"github.com/spf13/cobra"

	"github.com/unifikation/unify/pkg/report"
	"github.com/unifikation/unify/pkg/scenario"
)

func newPlanCommand(opts *options) *cobra.Command {
	var manager string

	cmd := &cobra.Command{
		Use:   "plan [scenario]",
		Short: "Show the installation plan of a scenario",
		Long: `Resolve the scenario's packages for the active package manager and list
the phases a run would execute. Nothing on the system is changed.

The plan shows package count, estimated disk usage (including a fixed
configuration overhead) and time, conflicts, and packages that could not be
resolved or are unavailable on this package manager.`,
		Example: `  # Plan the workstation scenario
  unify plan workstation

  # Plan for an Arch Linux host from any machine
  unify plan llm-server --manager pacman --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := scenarioArg(args)

			cfg, err := opts.loadConfig(manager)
			if err != nil {
				return err
			}
			orchOpts, err := opts.orchestratorOptions()
			if err != nil {
				return err
			}

			log := logger()
			orch, err := scenario.New(cfg, opts.commandRunner(cfg, log), nil, log, orchOpts...)
			if err != nil {
				return err
			}

			plan, err := orch.Plan(name)
			if err != nil {
				return err
			}

			log.Debug().
				Str("scenario", plan.Scenario).
				Str("manager", string(plan.Manager)).
				Int("packages", len(plan.Packages.Packages)).
				Int("phases", len(plan.Phases)).
				Msg("Plan resolved")

			return opts.output(cmd.OutOrStdout(), plan, func(r *report.Renderer) error {
				return r.Plan(plan)
			})
		},
	}

	cmd.Flags().StringVar(&manager, "manager", "", "package manager to plan for (apt, pacman, apk)")

	return cmd
}
