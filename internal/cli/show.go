package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/dials/pkg/types"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <location>",
		Short: "Display the entries of a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := types.Location(args[0])

			backend, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			entries, err := backend.Entries(loc)
			if err != nil {
				return storeError(err)
			}
			title := types.TitleOrDefault(backend, loc, loc.String())
			return a.printEntries(cmd.OutOrStdout(), loc, title, entries)
		},
	}
}
