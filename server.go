package pmdesk

import (
	"context"
	"errors"
	"io"
	"sync"

	"pkt.systems/pmdesk/core"
	"pkt.systems/pmdesk/httpapi"
	"pkt.systems/pmdesk/internal/command"
	"pkt.systems/pmdesk/internal/eventbus"
	"pkt.systems/pmdesk/internal/metrics"
	"pkt.systems/pmdesk/schema"
	"pkt.systems/pmdesk/sshserver"
	"pkt.systems/pslog"
)

// Server composes the HTTP API and the SSH console over one workspace service.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service             schema.ServiceConfig
	HTTP                httpapi.Config
	SSH                 sshserver.Config
	DisableAuditLogging bool
}

// ServerDeps captures dependencies required to build the server.
// Closers are closed once the server stops.
type ServerDeps struct {
	ServiceDeps core.ServiceDeps
	Metrics     *metrics.Metrics
	Closers     []io.Closer
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
	enableSSH  bool
}

// WithHTTP enables the HTTP API server.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithSSH enables the SSH console.
func WithSSH() ServerOption {
	return func(o *serverOptions) { o.enableSSH = true }
}

// New constructs a composable pmdesk server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableSSH {
		return nil, errors.New("no services enabled")
	}
	if deps.ServiceDeps.Registry == nil {
		return nil, errors.New("view registry is required")
	}
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized
	if cfg.DisableAuditLogging {
		cfg.Service.DisableAuditLogging = true
	}

	serviceDeps := deps.ServiceDeps
	logger := serviceDeps.Logger
	var hub *httpapi.Hub
	var bus *eventbus.Bus
	sinks := []core.EventSink{serviceDeps.EventSink}
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HTTP.HubHistory)
		sinks = append(sinks, hub)
	}
	if options.enableSSH {
		bus = eventbus.New(logger)
		sinks = append(sinks, bus)
	}
	if deps.Metrics != nil {
		sinks = append(sinks, deps.Metrics)
		if serviceDeps.Metrics == nil {
			serviceDeps.Metrics = deps.Metrics
		}
	}
	serviceDeps.EventSink = joinSinks(sinks...)

	service, err := core.NewService(cfg.Service, serviceDeps)
	if err != nil {
		return nil, err
	}
	cmdHandler := command.NewHandler(service, command.HandlerConfig{
		DisableAuditLogging: cfg.Service.DisableAuditLogging,
	})

	var httpSrv *httpapi.Server
	if options.enableHTTP {
		httpDeps := httpapi.Deps{Service: service, Commands: cmdHandler, Hub: hub}
		if deps.Metrics != nil {
			httpDeps.Metrics = deps.Metrics
		}
		httpSrv, err = httpapi.NewServer(cfg.HTTP, httpDeps)
		if err != nil {
			return nil, err
		}
	}

	var sshSrv *sshserver.Server
	if options.enableSSH {
		keys, err := sshserver.LoadAuthorizedKeys(cfg.SSH.AuthorizedKeysPath)
		if err != nil {
			return nil, err
		}
		sshSrv = &sshserver.Server{
			Addr:           cfg.SSH.Addr,
			HostKeyPath:    cfg.SSH.HostKeyPath,
			Service:        service,
			Commands:       cmdHandler,
			Prompt:         cfg.SSH.Prompt,
			AuthorizedKeys: keys,
			EventBus:       bus,
		}
		if deps.Metrics != nil {
			sshSrv.Metrics = deps.Metrics
		}
	}

	return &compositeServer{
		cfg:     cfg,
		options: options,
		service: service,
		hub:     hub,
		bus:     bus,
		httpSrv: httpSrv,
		sshSrv:  sshSrv,
		closers: deps.Closers,
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	service core.Service
	hub     *httpapi.Hub
	bus     *eventbus.Bus
	httpSrv *httpapi.Server
	sshSrv  *sshserver.Server
	closers []io.Closer
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
	closed  bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 2)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"ssh", s.options.enableSSH,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"ssh_addr", s.cfg.SSH.Addr,
	)
	if s.options.enableHTTP && s.httpSrv != nil {
		go func() {
			if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.options.enableSSH && s.sshSrv != nil {
		go func() {
			if err := s.sshSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("ssh server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	closers := s.closers
	if s.closed {
		closers = nil
	}
	s.closed = true
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	for _, closer := range closers {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil {
			log.Warn("server resource close failed", "err", err)
		}
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}
