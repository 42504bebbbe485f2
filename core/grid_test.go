package core

import (
	"errors"
	"reflect"
	"testing"

	"pkt.systems/pmdesk/schema"
)

func TestGridStartsWithEmptyLayoutPerBreakpoint(t *testing.T) {
	grid := newTestGrid(t, nil)
	layouts := grid.Layouts()
	if len(layouts) != len(schema.DefaultBreakpoints()) {
		t.Fatalf("expected a layout per breakpoint, got %v", layouts)
	}
	for name, entries := range layouts {
		if entries == nil || len(entries) != 0 {
			t.Fatalf("expected empty layout for %s, got %v", name, entries)
		}
	}
	if grid.CurrentBreakpoint() != "lg" {
		t.Fatalf("expected lg, got %s", grid.CurrentBreakpoint())
	}
}

func TestGridAddCellStacksAndClamps(t *testing.T) {
	grid := newTestGrid(t, nil)
	first, err := grid.AddCell(schema.ViewTeams, "", nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.X != 0 || first.Y != 0 || first.W != DefaultCellW || first.H != DefaultCellH {
		t.Fatalf("unexpected first placement %+v", first)
	}
	if first.MinW != DefaultCellMinW || first.MinH != DefaultCellMinH {
		t.Fatalf("unexpected minimums %+v", first)
	}
	second, err := grid.AddCell(schema.ViewTasks, "Tasks", schema.ViewContext{"team": "core"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if second.Y != first.Y+first.H {
		t.Fatalf("expected second cell below first, got y=%d", second.Y)
	}
	layouts := grid.Layouts()
	for _, bp := range schema.DefaultBreakpoints() {
		entries := layouts[bp.Name]
		if len(entries) != 2 {
			t.Fatalf("%s: expected two entries, got %v", bp.Name, entries)
		}
		for _, entry := range entries {
			if entry.W != min(DefaultCellW, bp.Columns) {
				t.Fatalf("%s: expected width clamped to %d, got %d", bp.Name, min(DefaultCellW, bp.Columns), entry.W)
			}
			if entry.MinW > entry.W {
				t.Fatalf("%s: minW %d exceeds w %d", bp.Name, entry.MinW, entry.W)
			}
		}
	}
}

func TestGridAddCellUsesDescriptorSize(t *testing.T) {
	registry, err := NewViewRegistry(
		ViewDescriptor{Type: "calendar", Cell: CellSize{W: 12, H: 6, MinW: 6, MinH: 4}},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	grid, err := NewGridArrangement(GridConfig{Registry: registry, NewID: sequentialIDs()})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	cell, err := grid.AddCell("calendar", "", nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if cell.W != 12 || cell.H != 6 || cell.Title != "calendar" {
		t.Fatalf("unexpected cell %+v", cell)
	}
	xxs := grid.Layouts()["xxs"][0]
	if xxs.W != 2 || xxs.MinW != 2 {
		t.Fatalf("expected xxs clamp to 2 columns, got %+v", xxs)
	}
}

func TestGridAddUnknownIsNoop(t *testing.T) {
	grid := newTestGrid(t, nil)
	before := grid.Snapshot()
	if _, err := grid.AddCell("ghost", "", nil); !errors.Is(err, schema.ErrUnknownView) {
		t.Fatalf("expected ErrUnknownView, got %v", err)
	}
	if !reflect.DeepEqual(before, grid.Snapshot()) {
		t.Fatalf("grid changed after unknown add")
	}
}

func TestGridAddThenRemoveRestoresLayouts(t *testing.T) {
	grid := newTestGrid(t, nil)
	if _, err := grid.AddCell(schema.ViewProjects, "", nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	before := grid.Layouts()
	cell, err := grid.AddCell(schema.ViewTeams, "", nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := grid.ZoomIn(cell.ID); err != nil {
		t.Fatalf("zoom: %v", err)
	}
	if _, err := grid.RemoveCell(cell.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !reflect.DeepEqual(before, grid.Layouts()) {
		t.Fatalf("layouts differ after add/remove:\nwant %v\ngot  %v", before, grid.Layouts())
	}
	if _, ok := grid.Snapshot().Zoom[cell.ID]; ok {
		t.Fatalf("expected zoom entry removed")
	}
	if _, ok := grid.Cell(cell.ID); ok {
		t.Fatalf("expected cell removed")
	}
}

func TestGridAddThenRemoveOnEmptyGrid(t *testing.T) {
	grid := newTestGrid(t, nil)
	before := grid.Layouts()
	cell, _ := grid.AddCell(schema.ViewTeams, "", nil)
	if _, err := grid.RemoveCell(cell.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !reflect.DeepEqual(before, grid.Layouts()) {
		t.Fatalf("layouts differ after add/remove on empty grid")
	}
}

func TestGridRemoveUnknownCell(t *testing.T) {
	grid := newTestGrid(t, nil)
	if _, err := grid.RemoveCell("ghost"); !errors.Is(err, schema.ErrCellNotFound) {
		t.Fatalf("expected ErrCellNotFound, got %v", err)
	}
}

func TestGridZoomClamps(t *testing.T) {
	grid := newTestGrid(t, nil)
	cell, _ := grid.AddCell(schema.ViewTeams, "", nil)
	if got := grid.Zoom(cell.ID); got != DefaultZoom {
		t.Fatalf("expected default zoom, got %v", got)
	}
	z, err := grid.ZoomIn(cell.ID)
	if err != nil || z != 1.1 {
		t.Fatalf("zoom in: z=%v err=%v", z, err)
	}
	for i := 0; i < 10; i++ {
		z, err = grid.ZoomOut(cell.ID)
		if err != nil {
			t.Fatalf("zoom out: %v", err)
		}
		if z <= 0 || z < MinZoom {
			t.Fatalf("zoom fell below minimum: %v", z)
		}
	}
	if z != MinZoom {
		t.Fatalf("expected clamp at %v, got %v", MinZoom, z)
	}
	for i := 0; i < 30; i++ {
		z, _ = grid.ZoomIn(cell.ID)
	}
	if z != MaxZoom {
		t.Fatalf("expected clamp at %v, got %v", MaxZoom, z)
	}
	if z, _ = grid.ResetZoom(cell.ID); z != DefaultZoom {
		t.Fatalf("expected reset to 1.0, got %v", z)
	}
	if _, err := grid.ZoomIn("ghost"); !errors.Is(err, schema.ErrCellNotFound) {
		t.Fatalf("expected ErrCellNotFound, got %v", err)
	}
}

func TestGridLayoutChange(t *testing.T) {
	capture := &logCapture{}
	grid := newTestGrid(t, newCaptureLogger(capture))
	a, _ := grid.AddCell(schema.ViewTeams, "", nil)
	b, _ := grid.AddCell(schema.ViewTasks, "", nil)
	mdBefore := grid.Layouts()["md"]

	dropped := grid.OnLayoutChange(schema.Layouts{
		"lg": {
			{CellID: b.ID, X: 0, Y: 0, W: 12, H: 3},
			{CellID: a.ID, X: 2, Y: 3, W: 4, H: 5},
			{CellID: "ghost", X: 0, Y: 0, W: 1, H: 1},
		},
		"huge": {{CellID: a.ID, W: 1, H: 1}},
	})
	if dropped != 2 {
		t.Fatalf("expected 2 dropped entries, got %d", dropped)
	}
	layouts := grid.Layouts()
	if len(layouts["lg"]) != 2 {
		t.Fatalf("expected lg replaced, got %v", layouts["lg"])
	}
	if _, ok := layouts["huge"]; ok {
		t.Fatalf("unknown breakpoint stored")
	}
	if !reflect.DeepEqual(mdBefore, layouts["md"]) {
		t.Fatalf("omitted breakpoint changed")
	}
	cellA, _ := grid.Cell(a.ID)
	if cellA.X != 2 || cellA.Y != 3 || cellA.W != 4 || cellA.H != 5 {
		t.Fatalf("expected geometry synced from lg, got %+v", cellA)
	}
	if !capture.has("grid layout change pruned entries") {
		t.Fatalf("expected prune warning")
	}
}

func TestGridLayoutChangeClampsToColumns(t *testing.T) {
	grid := newTestGrid(t, nil)
	a, _ := grid.AddCell(schema.ViewTeams, "", nil)
	grid.OnLayoutChange(schema.Layouts{"xxs": {{CellID: a.ID, X: -1, Y: -2, W: 9, H: 0}}})
	entry := grid.Layouts()["xxs"][0]
	if entry.X != 0 || entry.Y != 0 || entry.W != 2 || entry.H != 1 {
		t.Fatalf("unexpected sanitized entry %+v", entry)
	}
}

func TestGridBreakpointChange(t *testing.T) {
	grid := newTestGrid(t, nil)
	a, _ := grid.AddCell(schema.ViewTeams, "", nil)
	if err := grid.OnBreakpointChange("xs"); err != nil {
		t.Fatalf("breakpoint: %v", err)
	}
	cell, _ := grid.Cell(a.ID)
	if cell.W != 4 {
		t.Fatalf("expected xs width 4, got %d", cell.W)
	}
	if err := grid.OnBreakpointChange("giant"); !errors.Is(err, schema.ErrUnknownBreakpoint) {
		t.Fatalf("expected ErrUnknownBreakpoint, got %v", err)
	}
	if grid.CurrentBreakpoint() != "xs" {
		t.Fatalf("breakpoint changed after rejection")
	}
}

func TestGridBreakpointForWidth(t *testing.T) {
	grid := newTestGrid(t, nil)
	cases := map[int]schema.BreakpointName{
		1920: "lg",
		1200: "lg",
		1199: "md",
		800:  "sm",
		500:  "xs",
		100:  "xxs",
		-5:   "xxs",
	}
	for width, want := range cases {
		if got := grid.BreakpointForWidth(width); got != want {
			t.Fatalf("width %d: expected %s, got %s", width, want, got)
		}
	}
}

func TestGridOnDropValidatesPayload(t *testing.T) {
	grid := newTestGrid(t, nil)
	if _, err := grid.OnDrop(schema.DragPayload{}); !errors.Is(err, schema.ErrInvalidDragPayload) {
		t.Fatalf("expected ErrInvalidDragPayload, got %v", err)
	}
	cell, err := grid.OnDrop(schema.DragPayload{Type: schema.ViewCompanyProjects, Title: "Acme projects", Context: schema.ViewContext{"company": "Acme"}})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if cell.Type != schema.ViewCompanyProjects || cell.Context["company"] != "Acme" {
		t.Fatalf("unexpected cell %+v", cell)
	}
}
