package core

import (
	"context"
	"errors"
	"testing"

	"pkt.systems/pmdesk/schema"
)

func TestSidebarClickOpensTabInTabMode(t *testing.T) {
	shell := newTestShell(t, nil)
	tab, created, err := shell.SidebarClick(3)
	if err != nil {
		t.Fatalf("click: %v", err)
	}
	if !created || tab.Type != schema.ViewTeams {
		t.Fatalf("expected a new teams tab, got %+v created=%v", tab, created)
	}
	if shell.Tabs().Active().Type != schema.ViewTeams {
		t.Fatalf("expected teams active")
	}
	if shell.ActiveNavIndex() != 3 {
		t.Fatalf("expected nav index 3, got %d", shell.ActiveNavIndex())
	}
	again, created, err := shell.SidebarClick(3)
	if err != nil || created || again.Key != tab.Key {
		t.Fatalf("expected second click to activate the same tab")
	}
}

func TestSidebarClickInGridModeStillOpensTab(t *testing.T) {
	shell := newTestShell(t, nil)
	shell.SetGridMode(true)
	if _, _, err := shell.SidebarClick(2); err != nil {
		t.Fatalf("click: %v", err)
	}
	if len(shell.Grid().Cells()) != 0 {
		t.Fatalf("click must not touch the grid")
	}
	if shell.Tabs().Active().Type != schema.ViewProjects {
		t.Fatalf("expected projects tab")
	}
}

func TestSidebarClickUnknownIndex(t *testing.T) {
	capture := &logCapture{}
	shell := newTestShell(t, newCaptureLogger(capture))
	if _, _, err := shell.SidebarClick(99); !errors.Is(err, schema.ErrUnknownNavIndex) {
		t.Fatalf("expected ErrUnknownNavIndex, got %v", err)
	}
	if shell.Tabs().Len() != 1 {
		t.Fatalf("expected no tab change")
	}
	if !capture.has("shell sidebar click rejected") {
		t.Fatalf("expected warning")
	}
}

func TestSidebarDragAndDrop(t *testing.T) {
	shell := newTestShell(t, nil)
	payload, err := shell.SidebarDrag(4)
	if err != nil {
		t.Fatalf("drag: %v", err)
	}
	if payload.Type != schema.ViewTasks {
		t.Fatalf("unexpected payload %+v", payload)
	}
	cell, err := shell.Drop(payload)
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if cell.Type != schema.ViewTasks || shell.Tabs().Len() != 1 {
		t.Fatalf("drag should only affect the grid")
	}
}

func TestTabDragCarriesContext(t *testing.T) {
	shell := newTestShell(t, nil)
	if _, _, err := shell.OnOpenTab(schema.ViewCompanyDetails, "Acme", schema.ViewContext{"company": "Acme"}); err != nil {
		t.Fatalf("open: %v", err)
	}
	payload, err := shell.TabDragPayload(1)
	if err != nil {
		t.Fatalf("drag: %v", err)
	}
	cell, err := shell.DropRaw(mustJSON(t, payload))
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if cell.Title != "Acme" || cell.Context["company"] != "Acme" {
		t.Fatalf("unexpected cell %+v", cell)
	}
	if _, err := shell.TabDragPayload(9); !errors.Is(err, schema.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := shell.DropRaw([]byte(`{"title":"x"}`)); !errors.Is(err, schema.ErrInvalidDragPayload) {
		t.Fatalf("expected ErrInvalidDragPayload, got %v", err)
	}
}

func TestExpandCellSwitchesToTabMode(t *testing.T) {
	shell := newTestShell(t, nil)
	shell.SetGridMode(true)
	cell, err := shell.Grid().AddCell(schema.ViewReports, "", nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	tab, err := shell.ExpandCell(cell.ID)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if tab.Type != schema.ViewReports || shell.IsGridMode() {
		t.Fatalf("expected reports tab in tab mode, got %+v grid=%v", tab, shell.IsGridMode())
	}
	if _, ok := shell.Grid().Cell(cell.ID); !ok {
		t.Fatalf("expected cell to stay on the grid")
	}
	if _, err := shell.ExpandCell("ghost"); !errors.Is(err, schema.ErrCellNotFound) {
		t.Fatalf("expected ErrCellNotFound, got %v", err)
	}
}

func TestGridModeToggle(t *testing.T) {
	shell := newTestShell(t, nil)
	if !shell.ToggleGridMode() || !shell.IsGridMode() {
		t.Fatalf("expected grid mode")
	}
	if shell.SetGridMode(true) {
		t.Fatalf("expected no change")
	}
	if shell.ToggleGridMode() {
		t.Fatalf("expected tab mode")
	}
}

func TestRenderWorkspaceTabMode(t *testing.T) {
	shell := newTestShell(t, nil)
	if _, _, err := shell.SidebarClick(3); err != nil {
		t.Fatalf("click: %v", err)
	}
	view := RenderWorkspace(context.Background(), shell.registry, shell.Snapshot(), nil)
	if view.ActiveTab == nil || view.ActiveTab.Type != schema.ViewTeams || view.ActiveTab.Density != schema.DensityFull {
		t.Fatalf("unexpected active tab render %+v", view.ActiveTab)
	}
	if len(view.Cells) != 0 {
		t.Fatalf("tab mode should not render cells")
	}
}

func TestRenderWorkspaceGridIsolatesFailures(t *testing.T) {
	shell := newTestShell(t, nil)
	shell.SetGridMode(true)
	ok, _ := shell.Grid().AddCell(schema.ViewTeams, "", nil)
	bad, _ := shell.Grid().AddCell(schema.ViewTasks, "", schema.ViewContext{"fail": true})
	if err := shell.Grid().OnBreakpointChange("xxs"); err != nil {
		t.Fatalf("breakpoint: %v", err)
	}
	view := RenderWorkspace(context.Background(), shell.registry, shell.Snapshot(), nil)
	if view.ActiveTab != nil || len(view.Cells) != 2 {
		t.Fatalf("unexpected grid render %+v", view)
	}
	for _, rendered := range view.Cells {
		switch rendered.Cell.ID {
		case ok.ID:
			if rendered.Content.Error != "" || rendered.Content.Density != schema.DensityMedium {
				t.Fatalf("unexpected healthy cell %+v", rendered.Content)
			}
			if rendered.Zoom != DefaultZoom {
				t.Fatalf("expected default zoom, got %v", rendered.Zoom)
			}
		case bad.ID:
			if rendered.Content.Error == "" {
				t.Fatalf("expected renderer error on failing cell")
			}
		}
	}
}

func TestRenderViewOpenTabCallback(t *testing.T) {
	var requested schema.ViewType
	registry, err := NewViewRegistry(ViewDescriptor{
		Type: "tasks",
		Render: func(_ context.Context, req RenderRequest) (schema.ViewContent, error) {
			req.OpenTab(schema.ViewProjectDetails, "", schema.ViewContext{"project": "p1"})
			return schema.ViewContent{}, nil
		},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	content := RenderView(context.Background(), registry, "tasks", "", nil, schema.DensityFull, func(viewType schema.ViewType, _ string, _ schema.ViewContext) {
		requested = viewType
	})
	if requested != schema.ViewProjectDetails || content.Title != "tasks" {
		t.Fatalf("unexpected callback/content: %s %+v", requested, content)
	}
	missing := RenderView(context.Background(), registry, "ghost", "", nil, schema.DensityFull, nil)
	if missing.Error == "" {
		t.Fatalf("expected unknown view error content")
	}
}

func TestShellRestoreRejectsBadGrid(t *testing.T) {
	shell := newTestShell(t, nil)
	_, _, _ = shell.SidebarClick(1)
	before := shell.Snapshot()
	_, err := shell.Restore(nil, 0, schema.ArrangementBlob{Sheets: []schema.GridCell{{ID: ""}}}, "", true)
	if !errors.Is(err, schema.ErrMalformedSnapshot) {
		t.Fatalf("expected ErrMalformedSnapshot, got %v", err)
	}
	if len(shell.Snapshot().Tabs) != len(before.Tabs) || shell.IsGridMode() {
		t.Fatalf("shell changed after rejected restore")
	}
}
