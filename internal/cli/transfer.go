package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/dials/pkg/types"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write every location with its declarations and values to a JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			n, err := backend.Export(args[0])
			if err != nil {
				return sysError(err)
			}
			return a.reportCount(cmd, "exported", n, args[0])
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Declare locations and restore values from an exported JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			n, err := backend.Import(args[0])
			if err != nil {
				if errors.Is(err, os.ErrNotExist) || errors.Is(err, types.ErrInvalidDeclaration) || errors.Is(err, types.ErrDuplicateName) {
					return userError(err)
				}
				return sysError(err)
			}
			return a.reportCount(cmd, "imported", n, args[0])
		},
	}
}

func (a *app) reportCount(cmd *cobra.Command, verb string, n int, path string) error {
	if a.jsonMode {
		return printJSON(cmd.OutOrStdout(), map[string]any{verb: n, "file": path})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d locations (%s)\n", verb, n, path)
	return nil
}
