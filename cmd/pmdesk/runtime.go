package main

import (
	"errors"
	"strings"
	"time"

	"pkt.systems/pmdesk/core"
	"pkt.systems/pmdesk/httpapi"
	"pkt.systems/pmdesk/internal/appconfig"
	"pkt.systems/pmdesk/internal/backend"
	"pkt.systems/pmdesk/internal/metrics"
	"pkt.systems/pmdesk/internal/views"
	"pkt.systems/pmdesk/sshserver"
	"pkt.systems/pslog"
)

func toCellSize(cfg appconfig.CellConfig) core.CellSize {
	return core.CellSize{W: cfg.W, H: cfg.H, MinW: cfg.MinW, MinH: cfg.MinH}
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr:        cfg.Addr,
		BasePath:    cfg.BasePath,
		UserHeader:  cfg.UserHeader,
		DefaultUser: cfg.DefaultUser,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
		HubHistory:  cfg.HubHistory,
	}
}

func toSSHConfig(cfg appconfig.SSHConfig) sshserver.Config {
	return sshserver.Config{
		Addr:               cfg.Addr,
		HostKeyPath:        cfg.HostKeyPath,
		AuthorizedKeysPath: cfg.AuthorizedKeysPath,
	}
}

// newBackendClient builds the CRUD client from the backend section.
func newBackendClient(cfg appconfig.Config, logger pslog.Logger, m *metrics.Metrics) (*backend.Client, error) {
	if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
		return nil, errors.New("backend.base_url is empty")
	}
	backendCfg := backend.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		Retries:   cfg.Backend.Retries,
		RateLimit: cfg.Backend.RateLimit,
		Logger:    logger,
	}
	if m != nil {
		backendCfg.Metrics = m
	}
	return backend.NewClient(backendCfg)
}

// newRegistry builds the view registry. Without a backend base URL the data
// views render an offline notice.
func newRegistry(cfg appconfig.Config, logger pslog.Logger, m *metrics.Metrics) (*core.ViewRegistry, error) {
	opts := views.Options{DefaultCell: toCellSize(cfg.Service.DefaultCell)}
	if strings.TrimSpace(cfg.Backend.BaseURL) != "" {
		client, err := newBackendClient(cfg, logger, m)
		if err != nil {
			return nil, err
		}
		opts.Source = client
	}
	return views.NewRegistry(opts)
}

// offlineService builds a service without a backend. With persistState the
// service reads and writes the configured per-user state files.
func offlineService(cfg appconfig.Config, logger pslog.Logger, persistState bool) (core.Service, error) {
	registry, err := views.NewRegistry(views.Options{DefaultCell: toCellSize(cfg.Service.DefaultCell)})
	if err != nil {
		return nil, err
	}
	serviceCfg := cfg.ServiceConfig()
	if !persistState {
		serviceCfg.StateDir = ""
	}
	return core.NewService(serviceCfg, core.ServiceDeps{Registry: registry, Logger: logger})
}
