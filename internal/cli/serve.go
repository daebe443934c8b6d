package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/dials/internal/schema"
	"github.com/mesh-intelligence/dials/internal/transport"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		listen     string
		schemaPath string
		watch      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local store to mirroring clients over HTTP",
		Long: `Serve exposes the store over HTTP: snapshots, payload pushes, WebSocket
subscriptions, /healthz and Prometheus /metrics.

When a schema file is configured it is declared on startup and, with
--watch, declared again whenever the file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = a.cfg.GetString(cfgKeyListenAddr)
			}
			if schemaPath == "" {
				schemaPath = a.cfg.GetString(cfgKeySchemaFile)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			srv, err := transport.NewServer(backend, transport.WithLogger(a.logger), transport.WithRegistry(reg))
			if err != nil {
				return sysError(err)
			}

			if schemaPath != "" {
				file, err := schema.Load(schemaPath)
				if err != nil {
					return userError(err)
				}
				if err := file.Apply(srv); err != nil {
					return storeError(err)
				}
				a.logger.Info("schema declared", "path", schemaPath, "locations", len(file.Locations))
			}

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return sysError(fmt.Errorf("listen: %w", err))
			}
			httpServer := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			if watch && schemaPath != "" {
				g.Go(func() error {
					return schema.Watch(gctx, schemaPath, a.logger, func(file *schema.File) {
						if err := file.Apply(srv); err != nil {
							a.logger.Error("schema reload failed", "path", schemaPath, "err", err)
							return
						}
						a.logger.Info("schema reloaded", "path", schemaPath, "locations", len(file.Locations))
					})
				})
			}
			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down")
				srv.Close()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			a.logger.Info("listening", "addr", ln.Addr().String())
			if err := g.Wait(); err != nil {
				return sysError(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default: listen_addr from config.yaml)")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema file to declare on startup (default: schema_file from config.yaml)")
	cmd.Flags().BoolVar(&watch, "watch", true, "redeclare when the schema file changes")
	return cmd
}
