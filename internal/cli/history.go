package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/dials/pkg/types"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <location>",
		Short: "Show the batches applied to a location, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := types.Location(args[0])

			backend, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			batches, err := backend.History(loc, limit)
			if err != nil {
				return storeError(err)
			}
			if a.jsonMode {
				if batches == nil {
					batches = []types.AppliedBatch{}
				}
				return printJSON(cmd.OutOrStdout(), batches)
			}
			for _, b := range batches {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
					b.AppliedAt.Format("2006-01-02 15:04:05"), b.BatchID, strings.Join(b.Names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of batches (0 for all)")
	return cmd
}
