package main

import (
	"context"
	"errors"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pmdesk"
	"pkt.systems/pmdesk/core"
	"pkt.systems/pmdesk/internal/appconfig"
	"pkt.systems/pmdesk/internal/metrics"
	"pkt.systems/pmdesk/internal/persist"
	"pkt.systems/pslog"
)

var errNoSurfaces = errors.New("nothing to serve: both --no-http and --no-ssh are set")

func newServeCmd() *cobra.Command {
	var cfgPath string
	var disableAuditTrails bool
	var noHTTP bool
	var noSSH bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pmdesk HTTP and SSH servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if disableAuditTrails {
				cfg.Logging.DisableAuditTrails = true
			}
			opts := serveOptions(noHTTP, noSSH)
			if len(opts) == 0 {
				return errNoSurfaces
			}

			m := metrics.New()
			registry, err := newRegistry(cfg, logger, m)
			if err != nil {
				return err
			}
			if cfg.Backend.BaseURL == "" {
				logger.Warn("backend disabled", "reason", "backend.base_url is empty")
			} else {
				logger.Info("backend selected", "base_url", cfg.Backend.BaseURL, "retries", cfg.Backend.Retries)
			}
			library, err := persist.OpenLibrary(cmd.Context(), cfg.Library.Path, logger)
			if err != nil {
				return err
			}

			serverCfg := pmdesk.ServerConfig{
				Service:             cfg.ServiceConfig(),
				HTTP:                toHTTPConfig(cfg.HTTP),
				SSH:                 toSSHConfig(cfg.SSH),
				DisableAuditLogging: cfg.Logging.DisableAuditTrails,
			}
			serverDeps := pmdesk.ServerDeps{
				ServiceDeps: core.ServiceDeps{
					Registry: registry,
					Library:  library,
					Logger:   logger,
				},
				Metrics: m,
				Closers: []io.Closer{library},
			}
			server, err := pmdesk.New(serverCfg, serverDeps, opts...)
			if err != nil {
				_ = library.Close()
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&disableAuditTrails, "disable-audit-trails", false, "disable audit trail logging for commands")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "do not start the HTTP API")
	cmd.Flags().BoolVar(&noSSH, "no-ssh", false, "do not start the SSH console")
	return cmd
}

func serveOptions(noHTTP, noSSH bool) []pmdesk.ServerOption {
	var opts []pmdesk.ServerOption
	if !noHTTP {
		opts = append(opts, pmdesk.WithHTTP())
	}
	if !noSSH {
		opts = append(opts, pmdesk.WithSSH())
	}
	return opts
}
