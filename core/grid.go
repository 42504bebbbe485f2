package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

// Zoom bounds for grid cells.
const (
	MinZoom     = 0.5
	MaxZoom     = 2.0
	ZoomStep    = 0.1
	DefaultZoom = 1.0
)

// GridConfig configures a GridArrangement.
type GridConfig struct {
	Registry          *ViewRegistry
	Breakpoints       []schema.BreakpointSpec
	DefaultBreakpoint schema.BreakpointName
	Logger            pslog.Logger
	NewID             func() schema.CellID
	Now               func() time.Time
}

// GridArrangement places views on a responsive grid. Every configured
// breakpoint always has a layout list and every layout entry names a live cell.
type GridArrangement struct {
	registry    *ViewRegistry
	breakpoints []schema.BreakpointSpec
	cells       map[schema.CellID]*schema.GridCell
	order       []schema.CellID
	layouts     schema.Layouts
	current     schema.BreakpointName
	zoom        map[schema.CellID]float64
	newID       func() schema.CellID
	now         func() time.Time
	log         pslog.Logger
}

// NewGridArrangement constructs an empty grid.
func NewGridArrangement(cfg GridConfig) (*GridArrangement, error) {
	if cfg.Registry == nil {
		return nil, errors.New("view registry is required")
	}
	normalized, err := schema.NormalizeServiceConfig(schema.ServiceConfig{
		Breakpoints:       cfg.Breakpoints,
		DefaultBreakpoint: cfg.DefaultBreakpoint,
	})
	if err != nil {
		return nil, err
	}
	if cfg.NewID == nil {
		cfg.NewID = func() schema.CellID { return schema.CellID(uuid.NewString()) }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = pslog.Ctx(context.Background())
	}
	g := &GridArrangement{
		registry:    cfg.Registry,
		breakpoints: normalized.Breakpoints,
		cells:       make(map[schema.CellID]*schema.GridCell),
		current:     normalized.DefaultBreakpoint,
		zoom:        make(map[schema.CellID]float64),
		newID:       cfg.NewID,
		now:         cfg.Now,
		log:         cfg.Logger,
	}
	g.layouts = g.emptyLayouts()
	return g, nil
}

// AddCell places a view below every existing cell and mirrors the placement
// into each breakpoint, clamping width to that breakpoint's columns.
func (g *GridArrangement) AddCell(viewType schema.ViewType, title string, viewCtx schema.ViewContext) (schema.GridCell, error) {
	desc, err := g.registry.Resolve(viewType)
	if err != nil {
		g.log.Warn("grid cell add rejected", "type", viewType, "reason", "unknown view")
		return schema.GridCell{}, err
	}
	id := g.newID()
	for id == "" || g.cells[id] != nil {
		id = g.newID()
	}
	if title == "" {
		title = desc.DefaultTitle
	}
	cell := &schema.GridCell{
		ID:      id,
		Type:    desc.Type,
		Title:   title,
		Context: schema.CloneContext(viewCtx),
		X:       0,
		Y:       g.nextRow(),
		W:       desc.Cell.W,
		H:       desc.Cell.H,
		MinW:    desc.Cell.MinW,
		MinH:    desc.Cell.MinH,
	}
	for _, bp := range g.breakpoints {
		g.layouts[bp.Name] = append(g.layouts[bp.Name], entryFor(*cell, bp.Columns))
	}
	g.cells[id] = cell
	g.order = append(g.order, id)
	g.syncGeometry(cell)
	g.log.Debug("grid cell added", "cell", id, "type", desc.Type, "y", cell.Y)
	return *cell, nil
}

// OnDrop validates a drag payload and places its view.
func (g *GridArrangement) OnDrop(payload schema.DragPayload) (schema.GridCell, error) {
	viewType, err := schema.NormalizeViewType(string(payload.Type))
	if err != nil {
		g.log.Warn("grid drop rejected", "reason", "missing view type")
		return schema.GridCell{}, fmt.Errorf("%w: missing view type", schema.ErrInvalidDragPayload)
	}
	return g.AddCell(viewType, payload.Title, payload.Context)
}

// RemoveCell deletes a cell from the grid, every layout and the zoom table.
func (g *GridArrangement) RemoveCell(id schema.CellID) (schema.GridCell, error) {
	cell := g.cells[id]
	if cell == nil {
		g.log.Warn("grid cell remove rejected", "cell", id, "reason", "unknown cell")
		return schema.GridCell{}, fmt.Errorf("%w: %q", schema.ErrCellNotFound, id)
	}
	removed := *cell
	delete(g.cells, id)
	g.order = slices.DeleteFunc(g.order, func(current schema.CellID) bool { return current == id })
	for name, entries := range g.layouts {
		kept := make([]schema.LayoutEntry, 0, len(entries))
		for _, entry := range entries {
			if entry.CellID != id {
				kept = append(kept, entry)
			}
		}
		g.layouts[name] = kept
	}
	delete(g.zoom, id)
	g.log.Debug("grid cell removed", "cell", id)
	return removed, nil
}

// OnLayoutChange stores the layouts reported by the grid engine. Breakpoints the
// caller omits keep their previous list; unknown breakpoints and entries naming
// unknown cells are dropped. It returns the number of dropped entries.
func (g *GridArrangement) OnLayoutChange(layouts schema.Layouts) int {
	next := make(schema.Layouts, len(g.breakpoints))
	dropped := 0
	for _, bp := range g.breakpoints {
		entries, ok := layouts[bp.Name]
		if !ok {
			next[bp.Name] = slices.Clone(g.layouts[bp.Name])
			if next[bp.Name] == nil {
				next[bp.Name] = []schema.LayoutEntry{}
			}
			continue
		}
		kept := make([]schema.LayoutEntry, 0, len(entries))
		seen := make(map[schema.CellID]struct{}, len(entries))
		for _, entry := range entries {
			if g.cells[entry.CellID] == nil {
				dropped++
				continue
			}
			if _, dup := seen[entry.CellID]; dup {
				dropped++
				continue
			}
			seen[entry.CellID] = struct{}{}
			kept = append(kept, sanitizeEntry(entry, bp.Columns))
		}
		next[bp.Name] = kept
	}
	for name, entries := range layouts {
		if _, ok := next[name]; !ok {
			dropped += len(entries)
		}
	}
	g.layouts = next
	g.syncAll()
	if dropped > 0 {
		g.log.Warn("grid layout change pruned entries", "dropped", dropped)
	}
	return dropped
}

// OnBreakpointChange sets the current breakpoint.
func (g *GridArrangement) OnBreakpointChange(name schema.BreakpointName) error {
	if _, ok := g.breakpoint(name); !ok {
		g.log.Warn("grid breakpoint change rejected", "breakpoint", name, "reason", "unknown breakpoint")
		return fmt.Errorf("%w: %q", schema.ErrUnknownBreakpoint, name)
	}
	g.current = name
	g.syncAll()
	return nil
}

// BreakpointForWidth picks the widest breakpoint whose min width fits width.
func (g *GridArrangement) BreakpointForWidth(width int) schema.BreakpointName {
	for _, bp := range g.breakpoints {
		if width >= bp.MinWidth {
			return bp.Name
		}
	}
	return g.breakpoints[len(g.breakpoints)-1].Name
}

// CurrentBreakpoint returns the active breakpoint name.
func (g *GridArrangement) CurrentBreakpoint() schema.BreakpointName {
	return g.current
}

// Breakpoints returns the configured breakpoints, widest first.
func (g *GridArrangement) Breakpoints() []schema.BreakpointSpec {
	return slices.Clone(g.breakpoints)
}

// ZoomIn raises a cell's zoom by one step.
func (g *GridArrangement) ZoomIn(id schema.CellID) (float64, error) {
	return g.setZoom(id, g.Zoom(id)+ZoomStep)
}

// ZoomOut lowers a cell's zoom by one step.
func (g *GridArrangement) ZoomOut(id schema.CellID) (float64, error) {
	return g.setZoom(id, g.Zoom(id)-ZoomStep)
}

// ResetZoom returns a cell to 1.0.
func (g *GridArrangement) ResetZoom(id schema.CellID) (float64, error) {
	return g.setZoom(id, DefaultZoom)
}

// Zoom returns a cell's zoom; cells without an entry read as 1.0.
func (g *GridArrangement) Zoom(id schema.CellID) float64 {
	if z, ok := g.zoom[id]; ok {
		return z
	}
	return DefaultZoom
}

// Cell returns a cell by id.
func (g *GridArrangement) Cell(id schema.CellID) (schema.GridCell, bool) {
	cell := g.cells[id]
	if cell == nil {
		return schema.GridCell{}, false
	}
	out := *cell
	out.Context = schema.CloneContext(cell.Context)
	return out, true
}

// Cells returns cells in placement order.
func (g *GridArrangement) Cells() []schema.GridCell {
	out := make([]schema.GridCell, 0, len(g.order))
	for _, id := range g.order {
		if cell, ok := g.Cell(id); ok {
			out = append(out, cell)
		}
	}
	return out
}

// Layouts returns a copy of every breakpoint layout.
func (g *GridArrangement) Layouts() schema.Layouts {
	return cloneLayouts(g.layouts)
}

// Snapshot returns a read-only copy of the grid state.
func (g *GridArrangement) Snapshot() schema.GridSnapshot {
	zoom := make(map[schema.CellID]float64, len(g.zoom))
	for id, z := range g.zoom {
		zoom[id] = z
	}
	return schema.GridSnapshot{
		Cells:             g.Cells(),
		Layouts:           g.Layouts(),
		CurrentBreakpoint: g.current,
		Zoom:              zoom,
	}
}

func (g *GridArrangement) setZoom(id schema.CellID, value float64) (float64, error) {
	if g.cells[id] == nil {
		g.log.Warn("grid zoom rejected", "cell", id, "reason", "unknown cell")
		return 0, fmt.Errorf("%w: %q", schema.ErrCellNotFound, id)
	}
	z := clampZoom(value)
	g.zoom[id] = z
	return z, nil
}

func clampZoom(value float64) float64 {
	z := math.Round(value*10) / 10
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

func (g *GridArrangement) nextRow() int {
	bottom := 0
	for _, cell := range g.cells {
		if end := cell.Y + cell.H; end > bottom {
			bottom = end
		}
	}
	return bottom
}

func (g *GridArrangement) breakpoint(name schema.BreakpointName) (schema.BreakpointSpec, bool) {
	for _, bp := range g.breakpoints {
		if bp.Name == name {
			return bp, true
		}
	}
	return schema.BreakpointSpec{}, false
}

func (g *GridArrangement) emptyLayouts() schema.Layouts {
	layouts := make(schema.Layouts, len(g.breakpoints))
	for _, bp := range g.breakpoints {
		layouts[bp.Name] = []schema.LayoutEntry{}
	}
	return layouts
}

func (g *GridArrangement) syncAll() {
	for _, cell := range g.cells {
		g.syncGeometry(cell)
	}
}

// syncGeometry copies the current breakpoint's placement onto the cell.
func (g *GridArrangement) syncGeometry(cell *schema.GridCell) {
	for _, entry := range g.layouts[g.current] {
		if entry.CellID != cell.ID {
			continue
		}
		cell.X, cell.Y, cell.W, cell.H = entry.X, entry.Y, entry.W, entry.H
		if entry.MinW > 0 {
			cell.MinW = entry.MinW
		}
		if entry.MinH > 0 {
			cell.MinH = entry.MinH
		}
		return
	}
}

func entryFor(cell schema.GridCell, columns int) schema.LayoutEntry {
	w := min(cell.W, columns)
	return schema.LayoutEntry{
		CellID: cell.ID,
		X:      0,
		Y:      cell.Y,
		W:      w,
		H:      cell.H,
		MinW:   min(cell.MinW, w),
		MinH:   cell.MinH,
	}
}

func sanitizeEntry(entry schema.LayoutEntry, columns int) schema.LayoutEntry {
	entry.X = max(entry.X, 0)
	entry.Y = max(entry.Y, 0)
	entry.W = min(max(entry.W, 1), columns)
	entry.H = max(entry.H, 1)
	if entry.MinW > entry.W {
		entry.MinW = entry.W
	}
	if entry.MinH > entry.H {
		entry.MinH = entry.H
	}
	return entry
}

func cloneLayouts(layouts schema.Layouts) schema.Layouts {
	out := make(schema.Layouts, len(layouts))
	for name, entries := range layouts {
		cloned := make([]schema.LayoutEntry, len(entries))
		copy(cloned, entries)
		out[name] = cloned
	}
	return out
}
