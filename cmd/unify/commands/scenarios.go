package commands

import (
	"github.com/spf13/cobra"

	"github.com/unifikation/unify/pkg/report"
	"github.com/unifikation/unify/pkg/scenario"
)

func newScenariosCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List available scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var list []scenario.Scenario
			for _, name := range scenario.Names() {
				sc, err := scenario.Lookup(name)
				if err != nil {
					return err
				}
				list = append(list, sc)
			}
			return opts.output(cmd.OutOrStdout(), list, func(r *report.Renderer) error {
				return r.Scenarios(list)
			})
		},
	}
}
