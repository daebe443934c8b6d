package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/dials/internal/schema"
)

func newDeclareCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "declare [schema-file]",
		Short: "Declare locations and their entries from a schema file",
		Long: `Declare reads a YAML schema file and replaces the declared entry set of
every location it names. Stored values of entries that survive the
redeclaration are kept.

Without an argument the schema_file from config.yaml is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.GetString(cfgKeySchemaFile)
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return userError(errors.New("no schema file given and schema_file is not configured"))
			}

			file, err := schema.Load(path)
			if err != nil {
				return userError(err)
			}

			backend, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			if err := file.Apply(backend); err != nil {
				return storeError(err)
			}

			if a.jsonMode {
				locs := make([]string, len(file.Locations))
				for i, l := range file.Locations {
					locs[i] = l.Location.String()
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"declared": locs})
			}
			for _, l := range file.Locations {
				fmt.Fprintf(cmd.OutOrStdout(), "declared %s (%d entries)\n", l.Location, len(l.Entries))
			}
			return nil
		},
	}
}
