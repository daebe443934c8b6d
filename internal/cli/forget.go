package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/dials/pkg/types"
)

func newForgetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <location>",
		Short: "Remove a location with its values and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := types.Location(args[0])

			backend, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			if err := backend.Forget(loc); err != nil {
				return storeError(err)
			}
			if a.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{"forgotten": loc})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "forgot", loc)
			return nil
		},
	}
}
