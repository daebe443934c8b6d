package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/dials/internal/transport"
	"github.com/mesh-intelligence/dials/pkg/codec"
	"github.com/mesh-intelligence/dials/pkg/types"
)

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <location> <name=value>...",
		Short: "Edit entries of a location in the local store",
		Long: `Set parses each value the way an editor field would, then applies the
edited entries to the store as one batch. Rejected values and unknown names
are reported and skipped; the remaining assignments are still applied.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := types.Location(args[0])
			order, values, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}

			backend, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			entries, err := backend.Entries(loc)
			if err != nil {
				return storeError(err)
			}
			fieldErrs := editEntries(entries, order, values)

			c := codec.New(codec.WithLogger(a.logger))
			p, encErrs := c.Encode(entries)
			fieldErrs = append(fieldErrs, encErrs...)
			res, err := c.Decode(backend, loc, p)
			if err != nil {
				return storeError(err)
			}
			fieldErrs = append(fieldErrs, res.Errors...)

			applied := make(map[string]string, len(res.Applied))
			for name, e := range res.Applied {
				applied[name] = e.Display()
			}
			if a.jsonMode {
				if err := printJSON(cmd.OutOrStdout(), map[string]any{
					"location": loc,
					"applied":  applied,
					"errors":   transport.FieldReports(fieldErrs),
				}); err != nil {
					return err
				}
			} else {
				for _, name := range res.AppliedNames() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", name, applied[name])
				}
				printFieldErrors(cmd.ErrOrStderr(), fieldErrs)
			}
			if len(fieldErrs) > 0 {
				return userError(fmt.Errorf("%d of %d assignments skipped", len(fieldErrs), len(order)))
			}
			return nil
		},
	}
}

// editEntries parses each assignment into its entry. Unknown names and
// rejected text are returned as field errors.
func editEntries(entries []types.Entry, order []string, values map[string]string) []types.FieldError {
	index := types.EntryIndex(entries)
	var errs []types.FieldError
	for _, name := range order {
		e, ok := index[name]
		if !ok {
			errs = append(errs, types.NewFieldError(name, types.UnknownEntryName, types.ErrUnknownEntryName))
			continue
		}
		if err := e.Parse(values[name]); err != nil {
			errs = append(errs, types.NewFieldError(name, types.ValidationRejected, err))
		}
	}
	return errs
}
