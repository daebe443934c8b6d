package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize dials storage",
		Long:  "Create the configuration and data directories, then initialize the storage backend.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The config directory and config.yaml already exist after setup.
			backend, err := a.attachBackend()
			if err != nil {
				return err
			}
			if err := backend.Detach(); err != nil {
				return sysError(fmt.Errorf("finalize storage: %w", err))
			}

			dataDir, err := a.resolveDataDir()
			if err != nil {
				return sysError(err)
			}
			if a.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"config": filepath.Join(a.configDir, configFileExt),
					"data":   dataDir,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Dials initialized successfully")
			fmt.Fprintln(out, "  config:", a.configDir)
			fmt.Fprintln(out, "  data:  ", dataDir)
			return nil
		},
	}
}
