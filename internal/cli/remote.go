package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/dials/internal/mirror"
	"github.com/mesh-intelligence/dials/internal/transport"
	"github.com/mesh-intelligence/dials/pkg/codec"
	"github.com/mesh-intelligence/dials/pkg/types"
)

type remoteFlags struct {
	server string
	format string
}

func newRemoteCmd(a *app) *cobra.Command {
	rf := &remoteFlags{}
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Mirror locations of a running dials server",
	}
	cmd.PersistentFlags().StringVar(&rf.server, "server", "", "server URL (default: server_url from config.yaml)")
	cmd.PersistentFlags().StringVar(&rf.format, "format", "", "wire format: cbor or json (default: wire_format from config.yaml)")

	cmd.AddCommand(newRemoteLocationsCmd(a, rf))
	cmd.AddCommand(newRemoteShowCmd(a, rf))
	cmd.AddCommand(newRemoteSetCmd(a, rf))
	cmd.AddCommand(newRemoteFollowCmd(a, rf))
	return cmd
}

func (a *app) client(rf *remoteFlags) (*transport.Client, error) {
	url := rf.server
	if url == "" {
		url = a.cfg.GetString(cfgKeyServerURL)
	}
	formatName := rf.format
	if formatName == "" {
		formatName = a.cfg.GetString(cfgKeyWireFormat)
	}
	format, err := codec.ParseFormat(formatName)
	if err != nil {
		return nil, userError(err)
	}
	c, err := transport.NewClient(url, transport.WithFormat(format), transport.WithClientLogger(a.logger))
	if err != nil {
		return nil, userError(err)
	}
	return c, nil
}

// openSession opens a mirror of loc on the configured server.
func (a *app) openSession(cmd *cobra.Command, rf *remoteFlags, loc types.Location) (*mirror.Session, error) {
	c, err := a.client(rf)
	if err != nil {
		return nil, err
	}
	s := mirror.NewSession(c, loc, mirror.WithLogger(a.logger))
	if err := s.Open(cmd.Context()); err != nil {
		return nil, storeError(err)
	}
	return s, nil
}

func newRemoteLocationsCmd(a *app, rf *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "locations",
		Short: "List the server's locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(rf)
			if err != nil {
				return err
			}
			infos, err := c.Locations(cmd.Context())
			if err != nil {
				return storeError(err)
			}
			return a.printLocations(cmd.OutOrStdout(), infos)
		},
	}
}

func newRemoteShowCmd(a *app, rf *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <location>",
		Short: "Display a location as the server holds it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd, rf, types.Location(args[0]))
			if err != nil {
				return err
			}
			entries, err := s.Entries()
			if err != nil {
				return sysError(err)
			}
			return a.printEntries(cmd.OutOrStdout(), s.Location(), s.Title(), entries)
		},
	}
}

func newRemoteSetCmd(a *app, rf *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <location> <name=value>...",
		Short: "Edit entries locally and push the changes to the server",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, values, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			s, err := a.openSession(cmd, rf, types.Location(args[0]))
			if err != nil {
				return err
			}

			var fieldErrs []types.FieldError
			for _, name := range order {
				if err := s.Edit(name, values[name]); err != nil {
					var fe types.FieldError
					if !errors.As(err, &fe) {
						fe = types.NewFieldError(name, types.UnknownEntryName, err)
					}
					fieldErrs = append(fieldErrs, fe)
				}
			}

			res, encErrs, err := s.Push(cmd.Context())
			if err != nil {
				return storeError(err)
			}
			fieldErrs = append(fieldErrs, encErrs...)
			reports := append(transport.FieldReports(fieldErrs), res.Errors...)

			if a.jsonMode {
				if err := printJSON(cmd.OutOrStdout(), map[string]any{
					"location": s.Location(),
					"applied":  res.Applied,
					"errors":   reports,
					"changes":  res.Changes,
				}); err != nil {
					return err
				}
			} else {
				for _, op := range res.Changes {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %v\n", op.Type, op.Path, op.Value)
				}
				for _, r := range reports {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s (%s): %s\n", r.Name, r.Kind, r.Message)
				}
			}
			if len(reports) > 0 {
				return userError(fmt.Errorf("%d of %d assignments skipped", len(reports), len(order)))
			}
			return nil
		},
	}
}

func newRemoteFollowCmd(a *app, rf *remoteFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "follow <location>",
		Short: "Print changes to a location as the server applies them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			s, err := a.openSession(cmd, rf, types.Location(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !a.jsonMode {
				entries, err := s.Entries()
				if err != nil {
					return sysError(err)
				}
				if err := a.printEntries(out, s.Location(), s.Title(), entries); err != nil {
					return err
				}
			}

			// A failed write stops following; Follow runs the callback on
			// this goroutine, so writeErr needs no lock.
			var writeErr error
			err = s.Follow(ctx, func(res codec.Result) {
				if writeErr != nil {
					return
				}
				if writeErr = a.printApplied(out, s.Location(), res); writeErr != nil {
					a.logger.Error("follow output failed", "location", s.Location().String(), "err", writeErr)
					cancel()
				}
			})
			if err != nil {
				return sysError(err)
			}
			if writeErr != nil {
				return sysError(writeErr)
			}
			return nil
		},
	}
}

// printApplied writes one applied batch, as name = value lines or as JSON.
func (a *app) printApplied(out io.Writer, loc types.Location, res codec.Result) error {
	applied := make(map[string]string, len(res.Applied))
	for name, e := range res.Applied {
		applied[name] = e.Display()
	}
	if a.jsonMode {
		return printJSON(out, map[string]any{"location": loc, "applied": applied})
	}
	for _, name := range res.AppliedNames() {
		if _, err := fmt.Fprintf(out, "%s = %s\n", name, applied[name]); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}
