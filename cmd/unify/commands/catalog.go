package commands

import (
	"github.com/spf13/cobra"

	"github.com/unifikation/unify/pkg/report"
)

func newCatalogCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the package catalog",
		Long: `List every logical package id with its native name on apt, pacman and apk.
A dash marks a package that is not available on that manager. Use --catalog
to merge an overlay file over the built-in entries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := opts.loadCatalog()
			if err != nil {
				return err
			}
			entries := cat.Entries()
			return opts.output(cmd.OutOrStdout(), entries, func(r *report.Renderer) error {
				return r.Catalog(entries)
			})
		},
	}
}
