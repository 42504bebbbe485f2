package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

// ShellConfig configures a WorkspaceShell.
type ShellConfig struct {
	Registry          *ViewRegistry
	Nav               *NavMap
	HomeView          schema.ViewType
	PlaceholderView   schema.ViewType
	Breakpoints       []schema.BreakpointSpec
	DefaultBreakpoint schema.BreakpointName
	Logger            pslog.Logger
	Now               func() time.Time
	NewCellID         func() schema.CellID
}

// WorkspaceShell composes sidebar navigation, the tab session and the grid.
// Clicks always go to the tab session; only drags reach the grid.
type WorkspaceShell struct {
	registry *ViewRegistry
	nav      *NavMap
	tabs     *TabSession
	grid     *GridArrangement
	gridMode bool
	log      pslog.Logger
}

// NewWorkspaceShell constructs a shell in tab mode with a single home tab.
func NewWorkspaceShell(cfg ShellConfig) (*WorkspaceShell, error) {
	if cfg.Registry == nil {
		return nil, errors.New("view registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = pslog.Ctx(context.Background())
	}
	nav := cfg.Nav
	if nav == nil {
		var err error
		nav, err = NewNavMap(cfg.Registry, nil)
		if err != nil {
			return nil, err
		}
	}
	tabs, err := NewTabSession(TabSessionConfig{
		Registry:        cfg.Registry,
		HomeView:        cfg.HomeView,
		PlaceholderView: cfg.PlaceholderView,
		Logger:          cfg.Logger,
		Now:             cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	grid, err := NewGridArrangement(GridConfig{
		Registry:          cfg.Registry,
		Breakpoints:       cfg.Breakpoints,
		DefaultBreakpoint: cfg.DefaultBreakpoint,
		Logger:            cfg.Logger,
		NewID:             cfg.NewCellID,
		Now:               cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	return &WorkspaceShell{
		registry: cfg.Registry,
		nav:      nav,
		tabs:     tabs,
		grid:     grid,
		log:      cfg.Logger,
	}, nil
}

// bindLogger points the shell and its state machines at log.
func (w *WorkspaceShell) bindLogger(log pslog.Logger) *WorkspaceShell {
	if log == nil {
		return w
	}
	w.log = log
	w.tabs.log = log
	w.grid.log = log
	return w
}

// Tabs exposes the tab session.
func (w *WorkspaceShell) Tabs() *TabSession {
	return w.tabs
}

// Grid exposes the grid arrangement.
func (w *WorkspaceShell) Grid() *GridArrangement {
	return w.grid
}

// IsGridMode reports whether the grid is the active presentation.
func (w *WorkspaceShell) IsGridMode() bool {
	return w.gridMode
}

// SetGridMode switches presentation and reports whether it changed.
func (w *WorkspaceShell) SetGridMode(enabled bool) bool {
	if w.gridMode == enabled {
		return false
	}
	w.gridMode = enabled
	w.log.Debug("shell mode changed", "grid_mode", enabled)
	return true
}

// ToggleGridMode flips presentation and returns the new mode.
func (w *WorkspaceShell) ToggleGridMode() bool {
	w.SetGridMode(!w.gridMode)
	return w.gridMode
}

// SidebarClick opens (or re-activates) the sidebar item's view as a tab,
// regardless of mode.
func (w *WorkspaceShell) SidebarClick(index int) (schema.TabSnapshot, bool, error) {
	viewType, err := w.nav.TypeFor(index)
	if err != nil {
		w.log.Warn("shell sidebar click rejected", "index", index, "reason", "unknown nav index")
		return schema.TabSnapshot{}, false, err
	}
	return w.OnOpenTab(viewType, "", nil)
}

// SidebarDrag builds the drag payload for a sidebar item.
func (w *WorkspaceShell) SidebarDrag(index int) (schema.DragPayload, error) {
	viewType, err := w.nav.TypeFor(index)
	if err != nil {
		w.log.Warn("shell sidebar drag rejected", "index", index, "reason", "unknown nav index")
		return schema.DragPayload{}, err
	}
	desc, err := w.registry.Resolve(viewType)
	if err != nil {
		return schema.DragPayload{}, err
	}
	return schema.DragPayload{Type: desc.Type, Title: desc.DefaultTitle}, nil
}

// TabDragPayload builds the drag payload for an open tab.
func (w *WorkspaceShell) TabDragPayload(index int) (schema.DragPayload, error) {
	tab, err := w.tabs.At(index)
	if err != nil {
		w.log.Warn("shell tab drag rejected", "index", index, "reason", "index out of range")
		return schema.DragPayload{}, err
	}
	return schema.DragPayload{Type: tab.Type, Title: tab.Title, Context: tab.Context}, nil
}

// Drop places a dragged view on the grid.
func (w *WorkspaceShell) Drop(payload schema.DragPayload) (schema.GridCell, error) {
	return w.grid.OnDrop(payload)
}

// DropRaw decodes an untyped payload and places it on the grid.
func (w *WorkspaceShell) DropRaw(data []byte) (schema.GridCell, error) {
	payload, err := DecodeDragPayload(data)
	if err != nil {
		w.log.Warn("shell drop rejected", "err", err, "reason", "invalid payload")
		return schema.GridCell{}, err
	}
	return w.grid.OnDrop(payload)
}

// OnOpenTab is the navigation callback handed to rendered views.
func (w *WorkspaceShell) OnOpenTab(viewType schema.ViewType, title string, viewCtx schema.ViewContext) (schema.TabSnapshot, bool, error) {
	_, created, err := w.tabs.Open(viewType, title, viewCtx)
	if err != nil {
		return schema.TabSnapshot{}, false, err
	}
	return w.tabs.Active(), created, nil
}

// ExpandCell opens a cell's view as a tab and switches to tab mode. The cell stays on the grid.
func (w *WorkspaceShell) ExpandCell(id schema.CellID) (schema.TabSnapshot, error) {
	cell, ok := w.grid.Cell(id)
	if !ok {
		w.log.Warn("shell expand rejected", "cell", id, "reason", "unknown cell")
		return schema.TabSnapshot{}, fmt.Errorf("%w: %q", schema.ErrCellNotFound, id)
	}
	tab, _, err := w.OnOpenTab(cell.Type, cell.Title, cell.Context)
	if err != nil {
		return schema.TabSnapshot{}, err
	}
	w.SetGridMode(false)
	return tab, nil
}

// ActiveNavIndex returns the sidebar index highlighting the active tab, or -1.
func (w *WorkspaceShell) ActiveNavIndex() int {
	return w.nav.IndexFor(w.tabs.Active().Type)
}

// NavItems lists the sidebar.
func (w *WorkspaceShell) NavItems() []schema.NavItem {
	return w.nav.Items()
}

// Snapshot returns a pure data view of the workspace.
func (w *WorkspaceShell) Snapshot() schema.WorkspaceSnapshot {
	active := w.tabs.Active()
	return schema.WorkspaceSnapshot{
		GridMode:       w.gridMode,
		Tabs:           w.tabs.Tabs(),
		ActiveIndex:    w.tabs.ActiveIndex(),
		ActiveTab:      active.Key,
		Pinned:         w.tabs.Pinned(),
		ActiveNavIndex: w.ActiveNavIndex(),
		Grid:           w.grid.Snapshot(),
	}
}

// Restore replaces tabs, grid and mode from persisted state. The grid is
// validated first so a bad arrangement leaves the whole shell untouched.
func (w *WorkspaceShell) Restore(tabs []schema.TabSnapshot, activeIndex int, grid schema.ArrangementBlob, breakpoint schema.BreakpointName, gridMode bool) (int, error) {
	if err := ValidateArrangement(grid); err != nil {
		w.log.Error("shell restore rejected", "err", err)
		return 0, err
	}
	dropped := w.tabs.Restore(tabs, activeIndex)
	gridDropped, err := w.grid.Restore(grid)
	if err != nil {
		return dropped, err
	}
	if breakpoint != "" {
		if err := w.grid.OnBreakpointChange(breakpoint); err != nil {
			w.log.Debug("shell restore kept default breakpoint", "breakpoint", breakpoint)
		}
	}
	w.gridMode = gridMode
	return dropped + gridDropped, nil
}
