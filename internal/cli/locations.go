package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/dials/pkg/types"
)

func newLocationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "locations",
		Short: "List declared locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			infos, err := backend.Locations()
			if err != nil {
				return sysError(err)
			}
			return a.printLocations(cmd.OutOrStdout(), infos)
		},
	}
}

func (a *app) printLocations(w io.Writer, infos []types.LocationInfo) error {
	if a.jsonMode {
		if infos == nil {
			infos = []types.LocationInfo{}
		}
		return printJSON(w, infos)
	}
	for _, info := range infos {
		title := info.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(w, "%-16s %-24s %d entries\n", info.Location, title, info.Entries)
	}
	return nil
}
