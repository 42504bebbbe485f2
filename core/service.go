package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pmdesk/internal/logx"
	"pkt.systems/pmdesk/internal/persist"
	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

// service implements the core service behavior: one WorkspaceShell per user,
// every mutation serialized by mu, persisted and announced after it succeeds.
type service struct {
	cfg       schema.ServiceConfig
	registry  *ViewRegistry
	nav       *NavMap
	sink      EventSink
	store     *persist.Store
	library   ArrangementLibrary
	metrics   OperationRecorder
	logger    pslog.Logger
	now       func() time.Time
	newCellID func() schema.CellID
	mu        sync.Mutex
	shells    map[schema.UserID]*WorkspaceShell
	revisions map[schema.UserID]uint64
	writers   map[schema.UserID]*stateWriter
}

// stateWriter serializes state file writes for one user. saved is the revision
// last written; older revisions arriving late are skipped.
type stateWriter struct {
	mu    sync.Mutex
	saved uint64
}

// pendingState is a state captured under the service lock, ready to persist.
type pendingState struct {
	revision uint64
	state    persist.WorkspaceState
	writer   *stateWriter
}

// change describes what a mutation did, for events and persistence.
type change struct {
	event schema.WorkspaceEventType
	tab   schema.TabKey
	cell  schema.CellID
	noop  bool
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Registry == nil {
		return nil, errors.New("view registry is required")
	}
	for _, viewType := range []schema.ViewType{cfg.HomeView, cfg.PlaceholderView} {
		if _, err := deps.Registry.Resolve(viewType); err != nil {
			return nil, err
		}
	}
	entries := deps.Nav
	if entries == nil {
		entries = DefaultNavEntries()
	}
	nav, err := NewNavMap(deps.Registry, entries)
	if err != nil {
		return nil, err
	}
	var store *persist.Store
	if cfg.StateDir != "" {
		store, err = persist.NewStoreWithLogger(cfg.StateDir, deps.Logger)
		if err != nil {
			return nil, err
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{
		cfg:       cfg,
		registry:  deps.Registry,
		nav:       nav,
		sink:      deps.EventSink,
		store:     store,
		library:   deps.Library,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       deps.Now,
		newCellID: deps.NewCellID,
		shells:    make(map[schema.UserID]*WorkspaceShell),
		revisions: make(map[schema.UserID]uint64),
		writers:   make(map[schema.UserID]*stateWriter),
	}, nil
}

func (s *service) GetWorkspace(ctx context.Context, req schema.WorkspaceRequest) (schema.WorkspaceResponse, error) {
	snapshot, err := s.read(ctx, req.UserID, "workspace get", func(pslog.Logger, *WorkspaceShell) error { return nil })
	if err != nil {
		return schema.WorkspaceResponse{}, err
	}
	return schema.WorkspaceResponse{Snapshot: snapshot}, nil
}

func (s *service) RenderWorkspace(ctx context.Context, req schema.WorkspaceRequest) (schema.RenderWorkspaceResponse, error) {
	snapshot, err := s.read(ctx, req.UserID, "workspace render", func(pslog.Logger, *WorkspaceShell) error { return nil })
	if err != nil {
		return schema.RenderWorkspaceResponse{}, err
	}
	userID := req.UserID
	log := logx.WithUser(ctx, userID)
	openTab := func(viewType schema.ViewType, title string, viewCtx schema.ViewContext) {
		if _, err := s.OpenTab(ctx, schema.OpenTabRequest{UserID: userID, Type: viewType, Title: title, Context: viewCtx}); err != nil {
			log.Warn("service view navigation failed", "type", viewType, "err", err)
		}
	}
	view := RenderWorkspace(ctx, s.registry, snapshot, openTab)
	return schema.RenderWorkspaceResponse{View: view}, nil
}

func (s *service) FollowLink(ctx context.Context, req schema.FollowLinkRequest) (schema.OpenTabResponse, error) {
	snapshot, err := s.read(ctx, req.UserID, "link follow", func(pslog.Logger, *WorkspaceShell) error { return nil })
	if err != nil {
		return schema.OpenTabResponse{}, err
	}
	var (
		viewType schema.ViewType
		title    string
		viewCtx  schema.ViewContext
		density  = schema.DensityFull
		found    bool
	)
	if req.CellID == "" {
		for _, tab := range snapshot.Tabs {
			if tab.Key == snapshot.ActiveTab {
				viewType, title, viewCtx, found = tab.Type, tab.Title, tab.Context, true
				break
			}
		}
		if !found {
			return schema.OpenTabResponse{}, fmt.Errorf("%w: no active tab", schema.ErrTabNotFound)
		}
	} else {
		for _, cell := range snapshot.Grid.Cells {
			if cell.ID == req.CellID {
				viewType, title, viewCtx, density, found = cell.Type, cell.Title, cell.Context, DensityForCell(cell), true
				break
			}
		}
		if !found {
			return schema.OpenTabResponse{}, fmt.Errorf("%w: %s", schema.ErrCellNotFound, req.CellID)
		}
	}
	target, err := FollowLink(ctx, s.registry, viewType, title, viewCtx, density, req.Index)
	if err != nil {
		logx.WithUser(ctx, req.UserID).Debug("service link follow failed", "type", viewType, "index", req.Index, "err", err)
		return schema.OpenTabResponse{}, err
	}
	return s.OpenTab(ctx, schema.OpenTabRequest{UserID: req.UserID, Type: target.Type, Title: target.Title, Context: target.Context})
}

func (s *service) OpenTab(ctx context.Context, req schema.OpenTabRequest) (schema.OpenTabResponse, error) {
	var (
		tab     schema.TabSnapshot
		created bool
	)
	snapshot, err := s.update(ctx, req.UserID, "tab open", func(log pslog.Logger, shell *WorkspaceShell) (change, error) {
		viewType, err := schema.NormalizeViewType(string(req.Type))
		if err != nil {
			log.Warn("service tab open rejected", "type", req.Type, "reason", "invalid view type")
			return change{}, fmt.Errorf("%w: %q", schema.ErrUnknownView, req.Type)
		}
		tab, created, err = shell.OnOpenTab(viewType, req.Title, req.Context)
		if err != nil {
			return change{}, err
		}
		return tabChange(tab.Key, created), nil
	})
	if err != nil {
		return schema.OpenTabResponse{}, err
	}
	return schema.OpenTabResponse{Tab: tab, Created: created, Snapshot: snapshot}, nil
}

func (s *service) OpenNewTab(ctx context.Context, req schema.OpenNewTabRequest) (schema.OpenTabResponse, error) {
	var tab schema.TabSnapshot
	snapshot, err := s.update(ctx, req.UserID, "tab new", func(_ pslog.Logger, shell *WorkspaceShell) (change, error) {
		if _, err := shell.Tabs().OpenNew(); err != nil {
			return change{}, err
		}
		tab = shell.Tabs().Active()
		return tabChange(tab.Key, true), nil
	})
	if err != nil {
		return schema.OpenTabResponse{}, err
	}
	return schema.OpenTabResponse{Tab: tab, Created: true, Snapshot: snapshot}, nil
}

func (s *service) CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error) {
	var closed schema.TabSnapshot
	snapshot, err := s.update(ctx, req.UserID, "tab close", func(_ pslog.Logger, shell *WorkspaceShell) (change, error) {
		var err error
		if req.Key != "" {
			closed, err = shell.Tabs().CloseKey(req.Key)
		} else {
			closed, err = shell.Tabs().Close(req.Index)
		}
		if err != nil {
			return change{}, err
		}
		return change{event: schema.EventTabClosed, tab: closed.Key}, nil
	})
	if err != nil {
		return schema.CloseTabResponse{}, err
	}
	return schema.CloseTabResponse{Closed: closed, Snapshot: snapshot}, nil
}

func (s *service) ActivateTab(ctx context.Context, req schema.ActivateTabRequest) (schema.ActivateTabResponse, error) {
	var tab schema.TabSnapshot
	snapshot, err := s.update(ctx, req.UserID, "tab activate", func(_ pslog.Logger, shell *WorkspaceShell) (change, error) {
		var err error
		if req.Key != "" {
			err = shell.Tabs().ActivateKey(req.Key)
		} else {
			err = shell.Tabs().Activate(req.Index)
		}
		if err != nil {
			return change{}, err
		}
		tab = shell.Tabs().Active()
		return change{event: schema.EventTabActivated, tab: tab.Key}, nil
	})
	if err != nil {
		return schema.ActivateTabResponse{}, err
	}
	return schema.ActivateTabResponse{Tab: tab, Snapshot: snapshot}, nil
}

func (s *service) TogglePin(ctx context.Context, req schema.TogglePinRequest) (schema.TogglePinResponse, error) {
	var pinned bool
	snapshot, err := s.update(ctx, req.UserID, "tab pin", func(_ pslog.Logger, shell *WorkspaceShell) (change, error) {
		var err error
		pinned, err = shell.Tabs().TogglePin(req.Key)
		if err != nil {
			return change{}, err
		}
		return change{event: schema.EventTabPinned, tab: req.Key}, nil
	})
	if err != nil {
		return schema.TogglePinResponse{}, err
	}
	return schema.TogglePinResponse{Pinned: pinned, Snapshot: snapshot}, nil
}

func (s *service) NavClick(ctx context.Context, req schema.NavRequest) (schema.OpenTabResponse, error) {
	var (
		tab     schema.TabSnapshot
		created bool
	)
	snapshot, err := s.update(ctx, req.UserID, "nav click", func(_ pslog.Logger, shell *WorkspaceShell) (change, error) {
		var err error
		tab, created, err = shell.SidebarClick(req.Index)
		if err != nil {
			return change{}, err
		}
		return tabChange(tab.Key, created), nil
	})
	if err != nil {
		return schema.OpenTabResponse{}, err
	}
	return schema.OpenTabResponse{Tab: tab, Created: created, Snapshot: snapshot}, nil
}

func (s *service) NavDrag(ctx context.Context, req schema.NavRequest) (schema.DragResponse, error) {
	var payload schema.DragPayload
	_, err := s.read(ctx, req.UserID, "nav drag", func(_ pslog.Logger, shell *WorkspaceShell) error {
		var err error
		payload, err = shell.SidebarDrag(req.Index)
		return err
	})
	if err != nil {
		return schema.DragResponse{}, err
	}
	return schema.DragResponse{Payload: payload}, nil
}

func (s *service) DragTab(ctx context.Context, req schema.DragTabRequest) (schema.DragResponse, error) {
	var payload schema.DragPayload
	_, err := s.read(ctx, req.UserID, "tab drag", func(_ pslog.Logger, shell *WorkspaceShell) error {
		var err error
		payload, err = shell.TabDragPayload(req.Index)
		return err
	})
	if err != nil {
		return schema.DragResponse{}, err
	}
	return schema.DragResponse{Payload: payload}, nil
}

func (s *service) ListNav(ctx context.Context, req schema.WorkspaceRequest) (schema.ListNavResponse, error) {
	if ctx == nil {
		return schema.ListNavResponse{}, errors.New("missing context")
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.ListNavResponse{}, err
	}
	return schema.ListNavResponse{Items: s.nav.Items()}, nil
}

func (s *service) ListViews(ctx context.Context) (schema.ListViewsResponse, error) {
	if ctx == nil {
		return schema.ListViewsResponse{}, errors.New("missing context")
	}
	return schema.ListViewsResponse{Types: s.registry.Types()}, nil
}

func (s *service) SetGridMode(ctx context.Context, req schema.SetGridModeRequest) (schema.SetGridModeResponse, error) {
	var mode bool
	snapshot, err := s.update(ctx, req.UserID, "mode set", func(_ pslog.Logger, shell *WorkspaceShell) (change, error) {
		changed := true
		if req.Enabled == nil {
			shell.ToggleGridMode()
		} else {
			changed = shell.SetGridMode(*req.Enabled)
		}
		mode = shell.IsGridMode()
		return change{event: schema.EventModeChanged, noop: !changed}, nil
	})
	if err != nil {
		return schema.SetGridModeResponse{}, err
	}
	return schema.SetGridModeResponse{GridMode: mode, Snapshot: snapshot}, nil
}

func (s *service) AddCell(ctx context.Context, req schema.AddCellRequest) (schema.AddCellResponse, error) {
	var cell schema.GridCell
	snapshot, err := s.update(ctx, req.UserID, "grid cell add", func(log pslog.Logger, shell *WorkspaceShell) (change, error) {
		viewType, err := schema.NormalizeViewType(string(req.Type))
		if err != nil {
			log.Warn("service grid cell add rejected", "type", req.Type, "reason", "invalid view type")
			return change{}, fmt.Errorf("%w: %q", schema.ErrUnknownView, req.Type)
		}
		cell, err = shell.Grid().AddCell(viewType, req.Title, req.Context)
		if err != nil {
			return change{}, err
		}
		return change{event: schema.EventCellAdded, cell: cell.ID}, nil
	})
	if err != nil {
		return schema.AddCellResponse{}, err
	}
	return schema.AddCellResponse{Cell: cell, Snapshot: snapshot}, nil
}

func (s *service) Drop(ctx context.Context, req schema.DropRequest) (schema.AddCellResponse, error) {
	var cell schema.GridCell
	snapshot, err := s.update(ctx, req.UserID, "grid drop", func(_ pslog.Logger, shell *WorkspaceShell) (change, error) {
		var err error
		cell, err = shell.DropRaw(req.Payload)
		if err != nil {
			return change{}, err
		}
		return change{event: schema.EventCellAdded, cell: cell.ID}, nil
	})
	if err != nil {
		return schema.AddCellResponse{}, err
	}
	return schema.AddCellResponse{Cell: cell, Snapshot: snapshot}, nil
}

func (s *service) RemoveCell(ctx context.Context, req schema.RemoveCellRequest) (schema.WorkspaceResponse, error) {
	snapshot, err := s.update(ctx, req.UserID, "grid cell remove", func(_ pslog.Logger, shell *WorkspaceShell) (change, error) {
		if _, err := shell.Grid().RemoveCell(req.CellID); err != nil {
			return change{}, err
		}
		return change{event: schema.EventCellRemoved, cell: req.CellID}, nil
	})
	if err != nil {
		return schema.WorkspaceResponse{}, err
	}
	return schema.WorkspaceResponse{Snapshot: snapshot}, nil
}

func (s *service) UpdateLayouts(ctx context.Context, req schema.UpdateLayoutsRequest) (schema.WorkspaceResponse, error) {
	snapshot, err := s.update(ctx, req.UserID, "grid layout change", func(_ pslog.Logger, shell *WorkspaceShell) (change, error) {
		if req.Layouts == nil {
			return change{}, fmt.Errorf("%w: layouts are required", schema.ErrInvalidRequest)
		}
		shell.Grid().OnLayoutChange(req.Layouts)
		return change{event: schema.EventLayoutChanged}, nil
	})
	if err != nil {
		return schema.WorkspaceResponse{}, err
	}
	return schema.WorkspaceResponse{Snapshot: snapshot}, nil
}

func (s *service) SetBreakpoint(ctx context.Context, req schema.SetBreakpointRequest) (schema.SetBreakpointResponse, error) {
	var current schema.BreakpointName
	snapshot, err := s.update(ctx, req.UserID, "grid breakpoint change", func(_ pslog.Logger, shell *WorkspaceShell) (change, error) {
		grid := shell.Grid()
		name := req.Name
		if name == "" {
			name = grid.BreakpointForWidth(req.Width)
		}
		previous := grid.CurrentBreakpoint()
		if err := grid.OnBreakpointChange(name); err != nil {
			return change{}, err
		}
		current = grid.CurrentBreakpoint()
		return change{event: schema.EventBreakpointChanged, noop: previous == current}, nil
	})
	if err != nil {
		return schema.SetBreakpointResponse{}, err
	}
	return schema.SetBreakpointResponse{Breakpoint: current, Snapshot: snapshot}, nil
}

func (s *service) ZoomCell(ctx context.Context, req schema.ZoomCellRequest) (schema.ZoomCellResponse, error) {
	var zoom float64
	snapshot, err := s.update(ctx, req.UserID, "grid zoom", func(log pslog.Logger, shell *WorkspaceShell) (change, error) {
		grid := shell.Grid()
		var err error
		switch req.Action {
		case schema.ZoomIn:
			zoom, err = grid.ZoomIn(req.CellID)
		case schema.ZoomOut:
			zoom, err = grid.ZoomOut(req.CellID)
		case schema.ZoomReset:
			zoom, err = grid.ResetZoom(req.CellID)
		default:
			log.Warn("service grid zoom rejected", "action", req.Action, "reason", "unknown action")
			return change{}, fmt.Errorf("%w: zoom action %q", schema.ErrInvalidRequest, req.Action)
		}
		if err != nil {
			return change{}, err
		}
		return change{event: schema.EventZoomChanged, cell: req.CellID}, nil
	})
	if err != nil {
		return schema.ZoomCellResponse{}, err
	}
	return schema.ZoomCellResponse{Zoom: zoom, Snapshot: snapshot}, nil
}

func (s *service) ExpandCell(ctx context.Context, req schema.ExpandCellRequest) (schema.ActivateTabResponse, error) {
	var tab schema.TabSnapshot
	snapshot, err := s.update(ctx, req.UserID, "grid cell expand", func(_ pslog.Logger, shell *WorkspaceShell) (change, error) {
		var err error
		tab, err = shell.ExpandCell(req.CellID)
		if err != nil {
			return change{}, err
		}
		return change{event: schema.EventTabActivated, tab: tab.Key, cell: req.CellID}, nil
	})
	if err != nil {
		return schema.ActivateTabResponse{}, err
	}
	return schema.ActivateTabResponse{Tab: tab, Snapshot: snapshot}, nil
}

func (s *service) ExportArrangement(ctx context.Context, req schema.WorkspaceRequest) (schema.ExportArrangementResponse, error) {
	var data []byte
	_, err := s.read(ctx, req.UserID, "arrangement export", func(_ pslog.Logger, shell *WorkspaceShell) error {
		var err error
		data, err = shell.Grid().SaveSnapshot()
		return err
	})
	if err != nil {
		return schema.ExportArrangementResponse{}, err
	}
	return schema.ExportArrangementResponse{Data: data}, nil
}

func (s *service) ImportArrangement(ctx context.Context, req schema.ImportArrangementRequest) (schema.WorkspaceResponse, error) {
	snapshot, err := s.update(ctx, req.UserID, "arrangement import", func(_ pslog.Logger, shell *WorkspaceShell) (change, error) {
		if _, err := shell.Grid().LoadSnapshot(req.Data); err != nil {
			return change{}, err
		}
		return change{event: schema.EventArrangementLoaded}, nil
	})
	if err != nil {
		return schema.WorkspaceResponse{}, err
	}
	return schema.WorkspaceResponse{Snapshot: snapshot}, nil
}

func (s *service) SaveArrangement(ctx context.Context, req schema.SaveArrangementRequest) (schema.SaveArrangementResponse, error) {
	if s.library == nil {
		return schema.SaveArrangementResponse{}, schema.ErrLibraryUnavailable
	}
	exported, err := s.ExportArrangement(ctx, schema.WorkspaceRequest{UserID: req.UserID})
	if err != nil {
		return schema.SaveArrangementResponse{}, err
	}
	log := logx.WithUser(ctx, req.UserID)
	started := s.now()
	info, err := s.library.Save(ctx, req.UserID, req.Name, exported.Data)
	s.observe("arrangement save", started, err)
	if err != nil {
		log.Warn("service arrangement save failed", "name", req.Name, "err", err)
		return schema.SaveArrangementResponse{}, err
	}
	logx.WithArrangement(log, info.ID, info.Name).Info("service arrangement saved", "cells", info.Cells)
	return schema.SaveArrangementResponse{Arrangement: info}, nil
}

func (s *service) ListArrangements(ctx context.Context, req schema.WorkspaceRequest) (schema.ListArrangementsResponse, error) {
	if ctx == nil {
		return schema.ListArrangementsResponse{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.ListArrangementsResponse{}, err
	}
	if s.library == nil {
		return schema.ListArrangementsResponse{}, schema.ErrLibraryUnavailable
	}
	items, err := s.library.List(ctx, userID)
	if err != nil {
		logx.WithUser(ctx, userID).Warn("service arrangement list failed", "err", err)
		return schema.ListArrangementsResponse{}, err
	}
	return schema.ListArrangementsResponse{Arrangements: items}, nil
}

func (s *service) RestoreArrangement(ctx context.Context, req schema.ArrangementRequest) (schema.WorkspaceResponse, error) {
	if ctx == nil {
		return schema.WorkspaceResponse{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.WorkspaceResponse{}, err
	}
	if s.library == nil {
		return schema.WorkspaceResponse{}, schema.ErrLibraryUnavailable
	}
	info, data, err := s.library.Get(ctx, userID, req.ID, req.Name)
	if err != nil {
		logx.WithUser(ctx, userID).Warn("service arrangement restore failed", "err", err)
		return schema.WorkspaceResponse{}, err
	}
	resp, err := s.ImportArrangement(ctx, schema.ImportArrangementRequest{UserID: userID, Data: data})
	if err != nil {
		return schema.WorkspaceResponse{}, err
	}
	logx.WithArrangement(logx.WithUser(ctx, userID), info.ID, info.Name).Info("service arrangement restored")
	return resp, nil
}

func (s *service) DeleteArrangement(ctx context.Context, req schema.ArrangementRequest) (schema.ListArrangementsResponse, error) {
	if ctx == nil {
		return schema.ListArrangementsResponse{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.ListArrangementsResponse{}, err
	}
	if s.library == nil {
		return schema.ListArrangementsResponse{}, schema.ErrLibraryUnavailable
	}
	if err := s.library.Delete(ctx, userID, req.ID, req.Name); err != nil {
		logx.WithUser(ctx, userID).Warn("service arrangement delete failed", "err", err)
		return schema.ListArrangementsResponse{}, err
	}
	return s.ListArrangements(ctx, schema.WorkspaceRequest{UserID: userID})
}

// update runs fn against the user's shell under the service lock. On success
// the new state is persisted and announced unless fn reports a no-op.
func (s *service) update(ctx context.Context, userID schema.UserID, op string, fn func(log pslog.Logger, shell *WorkspaceShell) (change, error)) (schema.WorkspaceSnapshot, error) {
	if ctx == nil {
		return schema.WorkspaceSnapshot{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(userID)
	if err != nil {
		return schema.WorkspaceSnapshot{}, err
	}
	log := logx.WithUser(ctx, userID)
	log.Trace("service " + op + " start")
	started := s.now()

	s.mu.Lock()
	shell, err := s.getOrCreateShellLocked(userID)
	if err != nil {
		s.mu.Unlock()
		log.Warn("service "+op+" failed", "err", err)
		s.observe(op, started, err)
		return schema.WorkspaceSnapshot{}, err
	}
	result, err := fn(log, shell.bindLogger(log))
	if err != nil {
		s.mu.Unlock()
		log.Debug("service "+op+" failed", "err", err)
		s.observe(op, started, err)
		return schema.WorkspaceSnapshot{}, err
	}
	snapshot := shell.Snapshot()
	var pending pendingState
	if !result.noop {
		pending = s.captureStateLocked(userID, shell)
	}
	s.mu.Unlock()

	s.observe(op, started, nil)
	if result.noop {
		return snapshot, nil
	}
	if !s.cfg.DisableAuditLogging {
		logx.WithCell(log, result.cell, "").Debug("audit workspace", "op", op, "tab", result.tab, "event", result.event)
	}
	s.persistState(log, userID, pending)
	s.emitWorkspaceEvent(schema.WorkspaceEvent{
		UserID:   userID,
		Type:     result.event,
		TabKey:   result.tab,
		CellID:   result.cell,
		Snapshot: snapshot,
	})
	return snapshot, nil
}

// read runs fn against the user's shell under the service lock without persisting.
func (s *service) read(ctx context.Context, userID schema.UserID, op string, fn func(log pslog.Logger, shell *WorkspaceShell) error) (schema.WorkspaceSnapshot, error) {
	if ctx == nil {
		return schema.WorkspaceSnapshot{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(userID)
	if err != nil {
		return schema.WorkspaceSnapshot{}, err
	}
	log := logx.WithUser(ctx, userID)
	started := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	shell, err := s.getOrCreateShellLocked(userID)
	if err != nil {
		log.Warn("service "+op+" failed", "err", err)
		return schema.WorkspaceSnapshot{}, err
	}
	err = fn(log, shell.bindLogger(log))
	s.observe(op, started, err)
	if err != nil {
		log.Debug("service "+op+" failed", "err", err)
		return schema.WorkspaceSnapshot{}, err
	}
	return shell.Snapshot(), nil
}

func (s *service) observe(op string, started time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveOperation(op, err, s.now().Sub(started).Seconds())
}

func (s *service) emitWorkspaceEvent(event schema.WorkspaceEvent) {
	if s.sink == nil {
		return
	}
	s.sink.OnWorkspaceEvent(event)
}

func (s *service) newShell(log pslog.Logger) (*WorkspaceShell, error) {
	return NewWorkspaceShell(ShellConfig{
		Registry:          s.registry,
		Nav:               s.nav,
		HomeView:          s.cfg.HomeView,
		PlaceholderView:   s.cfg.PlaceholderView,
		Breakpoints:       s.cfg.Breakpoints,
		DefaultBreakpoint: s.cfg.DefaultBreakpoint,
		Logger:            log,
		Now:               s.now,
		NewCellID:         s.newCellID,
	})
}

func (s *service) getOrCreateShellLocked(userID schema.UserID) (*WorkspaceShell, error) {
	if shell := s.shells[userID]; shell != nil {
		return shell, nil
	}
	shell, err := s.loadShellLocked(userID)
	if err != nil {
		return nil, err
	}
	s.shells[userID] = shell
	return shell, nil
}

func (s *service) loadShellLocked(userID schema.UserID) (*WorkspaceShell, error) {
	log := s.logger.With("user", userID)
	shell, err := s.newShell(log)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return shell, nil
	}
	state, ok, err := s.store.Load(userID)
	if err != nil || !ok {
		if err != nil {
			log.Warn("service state load failed", "err", err)
		} else {
			log.Debug("service state missing")
		}
		return shell, nil
	}
	dropped, err := shell.Restore(state.Tabs, state.ActiveIndex, state.Grid, state.Breakpoint, state.GridMode)
	if err != nil {
		log.Warn("service state restore failed", "err", err)
		return s.newShell(log)
	}
	log.Debug("service state loaded", "tabs", shell.Tabs().Len(), "cells", len(state.Grid.Sheets), "dropped", dropped)
	return shell, nil
}

// captureStateLocked copies the user's state and stamps it with the next
// revision. Callers hold s.mu.
func (s *service) captureStateLocked(userID schema.UserID, shell *WorkspaceShell) pendingState {
	if s.store == nil {
		return pendingState{}
	}
	s.revisions[userID]++
	writer := s.writers[userID]
	if writer == nil {
		writer = &stateWriter{}
		s.writers[userID] = writer
	}
	return pendingState{
		revision: s.revisions[userID],
		writer:   writer,
		state: persist.WorkspaceState{
			Version:     persist.CurrentStateVersion,
			Tabs:        shell.Tabs().Tabs(),
			ActiveIndex: shell.Tabs().ActiveIndex(),
			GridMode:    shell.IsGridMode(),
			Breakpoint:  shell.Grid().CurrentBreakpoint(),
			Grid:        shell.Grid().Export(),
		},
	}
}

func (s *service) persistState(log pslog.Logger, userID schema.UserID, pending pendingState) {
	if s.store == nil || pending.writer == nil {
		return
	}
	pending.writer.mu.Lock()
	defer pending.writer.mu.Unlock()
	if pending.revision <= pending.writer.saved {
		log.Trace("service persist skipped", "reason", "stale revision", "revision", pending.revision, "saved", pending.writer.saved)
		return
	}
	if err := s.store.Save(userID, pending.state); err != nil {
		log.Warn("service persist failed", "err", err, "revision", pending.revision)
		return
	}
	pending.writer.saved = pending.revision
	log.Trace("service state persisted", "tabs", len(pending.state.Tabs), "cells", len(pending.state.Grid.Sheets), "revision", pending.revision)
}

func tabChange(key schema.TabKey, created bool) change {
	if created {
		return change{event: schema.EventTabOpened, tab: key}
	}
	return change{event: schema.EventTabActivated, tab: key}
}

func normalizeUserID(userID schema.UserID) (schema.UserID, error) {
	if err := schema.ValidateUserID(userID); err != nil {
		return "", schema.ErrInvalidUser
	}
	return userID, nil
}
