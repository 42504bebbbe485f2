package core

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"pkt.systems/pmdesk/internal/persist"
	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

type recordingSink struct {
	mu     sync.Mutex
	events []schema.WorkspaceEvent
}

func (r *recordingSink) OnWorkspaceEvent(event schema.WorkspaceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) types() []schema.WorkspaceEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.WorkspaceEventType, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Type)
	}
	return out
}

type recordingMetrics struct {
	mu     sync.Mutex
	ops    map[string]int
	failed map[string]int
}

func (m *recordingMetrics) ObserveOperation(op string, err error, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ops == nil {
		m.ops = map[string]int{}
		m.failed = map[string]int{}
	}
	m.ops[op]++
	if err != nil {
		m.failed[op]++
	}
}

func newTestService(t *testing.T, stateDir string, deps ServiceDeps) Service {
	t.Helper()
	if deps.Registry == nil {
		deps.Registry = newTestRegistry(t)
	}
	if deps.Now == nil {
		deps.Now = newFakeClock().Now
	}
	if deps.NewCellID == nil {
		deps.NewCellID = sequentialIDs()
	}
	svc, err := NewService(schema.ServiceConfig{StateDir: stateDir}, deps)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestServiceNavClickTeams(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, "", ServiceDeps{EventSink: sink})
	ctx := context.Background()
	resp, err := svc.NavClick(ctx, schema.NavRequest{UserID: "alice", Index: 3})
	if err != nil {
		t.Fatalf("nav click: %v", err)
	}
	if resp.Tab.Type != schema.ViewTeams || !resp.Created {
		t.Fatalf("unexpected tab %+v", resp.Tab)
	}
	if resp.Snapshot.ActiveTab != resp.Tab.Key || resp.Snapshot.ActiveNavIndex != 3 {
		t.Fatalf("unexpected snapshot %+v", resp.Snapshot)
	}
	if got := sink.types(); len(got) != 1 || got[0] != schema.EventTabOpened {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestServiceUsersAreIsolated(t *testing.T) {
	svc := newTestService(t, "", ServiceDeps{})
	ctx := context.Background()
	if _, err := svc.OpenTab(ctx, schema.OpenTabRequest{UserID: "alice", Type: schema.ViewProjects}); err != nil {
		t.Fatalf("open: %v", err)
	}
	resp, err := svc.GetWorkspace(ctx, schema.WorkspaceRequest{UserID: "bob"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(resp.Snapshot.Tabs) != 1 || resp.Snapshot.Tabs[0].Type != schema.ViewDashboard {
		t.Fatalf("expected bob to have only a home tab, got %+v", resp.Snapshot.Tabs)
	}
}

func TestServiceRejectsInvalidUser(t *testing.T) {
	svc := newTestService(t, "", ServiceDeps{})
	if _, err := svc.GetWorkspace(context.Background(), schema.WorkspaceRequest{UserID: "Bad User"}); !errors.Is(err, schema.ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
	//nolint:staticcheck // nil context is part of the contract
	if _, err := svc.GetWorkspace(nil, schema.WorkspaceRequest{UserID: "alice"}); err == nil {
		t.Fatalf("expected missing context error")
	}
}

func TestServiceFailedMutationIsSilent(t *testing.T) {
	sink := &recordingSink{}
	metrics := &recordingMetrics{}
	svc := newTestService(t, t.TempDir(), ServiceDeps{EventSink: sink, Metrics: metrics})
	ctx := context.Background()
	if _, err := svc.CloseTab(ctx, schema.CloseTabRequest{UserID: "alice", Index: 5}); !errors.Is(err, schema.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := svc.OpenTab(ctx, schema.OpenTabRequest{UserID: "alice", Type: "spreadsheet"}); !errors.Is(err, schema.ErrUnknownView) {
		t.Fatalf("expected ErrUnknownView, got %v", err)
	}
	if len(sink.types()) != 0 {
		t.Fatalf("expected no events, got %v", sink.types())
	}
	if metrics.failed["tab close"] != 1 || metrics.failed["tab open"] != 1 {
		t.Fatalf("expected failures recorded, got %+v", metrics.failed)
	}
}

func TestServicePersistsAndReloads(t *testing.T) {
	stateDir := t.TempDir()
	ctx := context.Background()
	svc := newTestService(t, stateDir, ServiceDeps{})
	open, err := svc.OpenTab(ctx, schema.OpenTabRequest{UserID: "alice", Type: schema.ViewCompanyProjects, Context: schema.ViewContext{"company": "Acme"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.TogglePin(ctx, schema.TogglePinRequest{UserID: "alice", Key: open.Tab.Key}); err != nil {
		t.Fatalf("pin: %v", err)
	}
	added, err := svc.AddCell(ctx, schema.AddCellRequest{UserID: "alice", Type: schema.ViewTeams})
	if err != nil {
		t.Fatalf("add cell: %v", err)
	}
	if _, err := svc.ZoomCell(ctx, schema.ZoomCellRequest{UserID: "alice", CellID: added.Cell.ID, Action: schema.ZoomIn}); err != nil {
		t.Fatalf("zoom: %v", err)
	}
	enabled := true
	if _, err := svc.SetGridMode(ctx, schema.SetGridModeRequest{UserID: "alice", Enabled: &enabled}); err != nil {
		t.Fatalf("grid mode: %v", err)
	}
	if _, err := svc.SetBreakpoint(ctx, schema.SetBreakpointRequest{UserID: "alice", Width: 800}); err != nil {
		t.Fatalf("breakpoint: %v", err)
	}

	store, err := persist.NewStore(stateDir)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	state, ok, err := store.Load("alice")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(state.Tabs) != 2 || !state.GridMode || state.Breakpoint != "sm" || len(state.Grid.Sheets) != 1 {
		t.Fatalf("unexpected persisted state %+v", state)
	}

	reloaded := newTestService(t, stateDir, ServiceDeps{})
	resp, err := reloaded.GetWorkspace(ctx, schema.WorkspaceRequest{UserID: "alice"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	snap := resp.Snapshot
	if snap.ActiveTab != open.Tab.Key || len(snap.Pinned) != 1 || !snap.GridMode {
		t.Fatalf("unexpected reloaded snapshot %+v", snap)
	}
	if snap.Grid.CurrentBreakpoint != "sm" || snap.Grid.Zoom[added.Cell.ID] != 1.1 {
		t.Fatalf("unexpected reloaded grid %+v", snap.Grid)
	}
}

func TestServicePersistedStateTracksConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		stateDir := t.TempDir()
		svc := newTestService(t, stateDir, ServiceDeps{})
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				if _, err := svc.OpenTab(ctx, schema.OpenTabRequest{UserID: "alice", Type: schema.ViewTeams, Context: schema.ViewContext{"n": n}}); err != nil {
					t.Errorf("open %d: %v", n, err)
				}
			}(i)
		}
		wg.Wait()

		resp, err := svc.GetWorkspace(ctx, schema.WorkspaceRequest{UserID: "alice"})
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		store, err := persist.NewStore(stateDir)
		if err != nil {
			t.Fatalf("store: %v", err)
		}
		state, ok, err := store.Load("alice")
		if err != nil || !ok {
			t.Fatalf("load: ok=%v err=%v", ok, err)
		}
		if len(resp.Snapshot.Tabs) != 9 {
			t.Fatalf("round %d: expected 9 tabs in memory, got %d", round, len(resp.Snapshot.Tabs))
		}
		if len(state.Tabs) != len(resp.Snapshot.Tabs) {
			t.Fatalf("round %d: memory has %d tabs, disk has %d", round, len(resp.Snapshot.Tabs), len(state.Tabs))
		}
		for i, tab := range state.Tabs {
			if tab.Key != resp.Snapshot.Tabs[i].Key {
				t.Fatalf("round %d: tab %d differs: disk %q memory %q", round, i, tab.Key, resp.Snapshot.Tabs[i].Key)
			}
		}
	}
}

func TestServiceDropAndExpand(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, "", ServiceDeps{EventSink: sink})
	ctx := context.Background()
	drag, err := svc.NavDrag(ctx, schema.NavRequest{UserID: "alice", Index: 5})
	if err != nil {
		t.Fatalf("drag: %v", err)
	}
	payload, _ := json.Marshal(drag.Payload)
	dropped, err := svc.Drop(ctx, schema.DropRequest{UserID: "alice", Payload: payload})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if dropped.Cell.Type != schema.ViewCalendar {
		t.Fatalf("unexpected cell %+v", dropped.Cell)
	}
	expanded, err := svc.ExpandCell(ctx, schema.ExpandCellRequest{UserID: "alice", CellID: dropped.Cell.ID})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if expanded.Tab.Type != schema.ViewCalendar || expanded.Snapshot.GridMode {
		t.Fatalf("unexpected expand result %+v", expanded)
	}
	if _, err := svc.Drop(ctx, schema.DropRequest{UserID: "alice", Payload: []byte(`{"type":""}`)}); !errors.Is(err, schema.ErrInvalidDragPayload) {
		t.Fatalf("expected ErrInvalidDragPayload, got %v", err)
	}
	got := sink.types()
	if len(got) != 2 || got[0] != schema.EventCellAdded || got[1] != schema.EventTabActivated {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestServiceImportRejectsMalformed(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture)
	svc := newTestService(t, "", ServiceDeps{Logger: logger})
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	if _, err := svc.AddCell(ctx, schema.AddCellRequest{UserID: "alice", Type: schema.ViewTeams}); err != nil {
		t.Fatalf("add: %v", err)
	}
	before, err := svc.ExportArrangement(ctx, schema.WorkspaceRequest{UserID: "alice"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := svc.ImportArrangement(ctx, schema.ImportArrangementRequest{UserID: "alice", Data: []byte(`{"layouts":{}}`)}); !errors.Is(err, schema.ErrMalformedSnapshot) {
		t.Fatalf("expected ErrMalformedSnapshot, got %v", err)
	}
	after, err := svc.ExportArrangement(ctx, schema.WorkspaceRequest{UserID: "alice"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var a, b schema.ArrangementBlob
	_ = json.Unmarshal(before.Data, &a)
	_ = json.Unmarshal(after.Data, &b)
	if len(a.Sheets) != len(b.Sheets) || a.Sheets[0].ID != b.Sheets[0].ID {
		t.Fatalf("arrangement changed after rejected import")
	}
	if !capture.has("grid snapshot rejected") {
		t.Fatalf("expected rejection log")
	}
}

func TestServiceArrangementLibrary(t *testing.T) {
	ctx := context.Background()
	if _, err := newTestService(t, "", ServiceDeps{}).SaveArrangement(ctx, schema.SaveArrangementRequest{UserID: "alice", Name: "x"}); !errors.Is(err, schema.ErrLibraryUnavailable) {
		t.Fatalf("expected ErrLibraryUnavailable, got %v", err)
	}

	lib, err := persist.OpenLibrary(ctx, filepath.Join(t.TempDir(), "library.sqlite"), nil)
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close() })
	svc := newTestService(t, "", ServiceDeps{Library: lib})

	if _, err := svc.AddCell(ctx, schema.AddCellRequest{UserID: "alice", Type: schema.ViewTeams}); err != nil {
		t.Fatalf("add: %v", err)
	}
	saved, err := svc.SaveArrangement(ctx, schema.SaveArrangementRequest{UserID: "alice", Name: "standup"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Arrangement.Cells != 1 {
		t.Fatalf("unexpected saved info %+v", saved.Arrangement)
	}
	list, err := svc.ListArrangements(ctx, schema.WorkspaceRequest{UserID: "alice"})
	if err != nil || len(list.Arrangements) != 1 {
		t.Fatalf("list: %+v err=%v", list, err)
	}

	if _, err := svc.RemoveCell(ctx, schema.RemoveCellRequest{UserID: "alice", CellID: "cell-1"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	restored, err := svc.RestoreArrangement(ctx, schema.ArrangementRequest{UserID: "alice", Name: "standup"})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(restored.Snapshot.Grid.Cells) != 1 || restored.Snapshot.Grid.Cells[0].ID != "cell-1" {
		t.Fatalf("unexpected restored grid %+v", restored.Snapshot.Grid)
	}

	remaining, err := svc.DeleteArrangement(ctx, schema.ArrangementRequest{UserID: "alice", ID: saved.Arrangement.ID})
	if err != nil || len(remaining.Arrangements) != 0 {
		t.Fatalf("delete: %+v err=%v", remaining, err)
	}
	if _, err := svc.RestoreArrangement(ctx, schema.ArrangementRequest{UserID: "alice", Name: "standup"}); !errors.Is(err, schema.ErrArrangementNotFound) {
		t.Fatalf("expected ErrArrangementNotFound, got %v", err)
	}
}

func TestServiceFollowLink(t *testing.T) {
	svc := newTestService(t, "", ServiceDeps{})
	ctx := context.Background()
	if _, err := svc.NavClick(ctx, schema.NavRequest{UserID: "alice", Index: 1}); err != nil {
		t.Fatalf("nav click: %v", err)
	}
	resp, err := svc.FollowLink(ctx, schema.FollowLinkRequest{UserID: "alice", Index: 1})
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if resp.Tab.Type != schema.ViewCompanyProjects || !resp.Created || resp.Tab.Title != "Acme Projects" {
		t.Fatalf("unexpected tab %+v", resp.Tab)
	}
	if resp.Tab.Context["companyId"] != "c1" || resp.Snapshot.ActiveTab != resp.Tab.Key {
		t.Fatalf("unexpected snapshot %+v", resp.Snapshot)
	}
	if _, err := svc.FollowLink(ctx, schema.FollowLinkRequest{UserID: "alice", Index: 1}); !errors.Is(err, schema.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound from a view without links, got %v", err)
	}

	drag, err := svc.NavDrag(ctx, schema.NavRequest{UserID: "alice", Index: 1})
	if err != nil {
		t.Fatalf("drag: %v", err)
	}
	payload, _ := json.Marshal(drag.Payload)
	dropped, err := svc.Drop(ctx, schema.DropRequest{UserID: "alice", Payload: payload})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	again, err := svc.FollowLink(ctx, schema.FollowLinkRequest{UserID: "alice", CellID: dropped.Cell.ID, Index: 1})
	if err != nil {
		t.Fatalf("follow from cell: %v", err)
	}
	if again.Created || again.Tab.Key != resp.Tab.Key {
		t.Fatalf("expected the existing tab to be re-activated, got %+v", again.Tab)
	}
	if _, err := svc.FollowLink(ctx, schema.FollowLinkRequest{UserID: "alice", CellID: dropped.Cell.ID, Index: 2}); !errors.Is(err, schema.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
	if _, err := svc.FollowLink(ctx, schema.FollowLinkRequest{UserID: "alice", CellID: "ghost", Index: 1}); !errors.Is(err, schema.ErrCellNotFound) {
		t.Fatalf("expected ErrCellNotFound, got %v", err)
	}
}

func TestServiceRenderWorkspaceNavigation(t *testing.T) {
	registry, err := NewViewRegistry(
		ViewDescriptor{Type: schema.ViewDashboard, Render: func(_ context.Context, req RenderRequest) (schema.ViewContent, error) {
			req.OpenTab(schema.ViewTasks, "Overdue", schema.ViewContext{"filter": "overdue"})
			return schema.ViewContent{Lines: []string{"hello"}}, nil
		}},
		ViewDescriptor{Type: schema.ViewNewTab},
		ViewDescriptor{Type: schema.ViewTasks},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	svc := newTestService(t, "", ServiceDeps{
		Registry: registry,
		Nav:      []NavEntry{{Index: 0, Type: schema.ViewDashboard}, {Index: 1, Type: schema.ViewTasks}},
	})
	ctx := context.Background()
	rendered, err := svc.RenderWorkspace(ctx, schema.WorkspaceRequest{UserID: "alice"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if rendered.View.ActiveTab == nil || rendered.View.ActiveTab.Lines[0] != "hello" {
		t.Fatalf("unexpected render %+v", rendered.View)
	}
	resp, err := svc.GetWorkspace(ctx, schema.WorkspaceRequest{UserID: "alice"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(resp.Snapshot.Tabs) != 2 || resp.Snapshot.Tabs[1].Title != "Overdue" {
		t.Fatalf("expected view navigation to open a tab, got %+v", resp.Snapshot.Tabs)
	}
}

func TestServiceAuditLogging(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture)
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	svc := newTestService(t, "", ServiceDeps{Logger: logger})
	if _, err := svc.OpenNewTab(ctx, schema.OpenNewTabRequest{UserID: "alice"}); err != nil {
		t.Fatalf("new tab: %v", err)
	}
	found := false
	for _, entry := range capture.Entries() {
		if entry.Message == "audit workspace" && entry.Fields["op"] == "tab new" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected audit entry")
	}
}
