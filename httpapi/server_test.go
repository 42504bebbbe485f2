package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkt.systems/pmdesk/core"
	"pkt.systems/pmdesk/internal/backend"
	"pkt.systems/pmdesk/internal/command"
	"pkt.systems/pmdesk/internal/metrics"
	"pkt.systems/pmdesk/internal/persist"
	"pkt.systems/pmdesk/internal/views"
	"pkt.systems/pmdesk/schema"
)

type testEnv struct {
	server  *Server
	handler http.Handler
	hub     *Hub
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, cfg Config, library core.ArrangementLibrary) testEnv {
	t.Helper()
	return newSourcedTestEnv(t, cfg, library, nil)
}

func newSourcedTestEnv(t *testing.T, cfg Config, library core.ArrangementLibrary, source views.Source) testEnv {
	t.Helper()
	registry, err := views.NewRegistry(views.Options{Source: source, DefaultCell: core.CellSize{W: 6, H: 4, MinW: 4, MinH: 3}})
	require.NoError(t, err)
	hub := NewHub(cfg.HubHistory)
	m := metrics.New()
	svc, err := core.NewService(schema.ServiceConfig{}, core.ServiceDeps{
		Registry:  registry,
		EventSink: hub,
		Library:   library,
		Metrics:   m,
	})
	require.NoError(t, err)
	if cfg.UserHeader == "" {
		cfg.UserHeader = "X-Pmdesk-User"
	}
	if cfg.DefaultUser == "" {
		cfg.DefaultUser = "admin"
	}
	srv, err := NewServer(cfg, Deps{
		Service:  svc,
		Commands: command.NewHandler(svc, command.HandlerConfig{}),
		Hub:      hub,
		Metrics:  m,
	})
	require.NoError(t, err)
	return testEnv{server: srv, handler: srv.Handler(), hub: hub, metrics: m}
}

func (e testEnv) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("X-Pmdesk-User", user)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestOpenTabAndWorkspace(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	rec := env.do(t, http.MethodPost, "/api/tabs/open", "", `{"type":"tasks","title":"Sprint","context":{"status":"open"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	opened := decodeBody[schema.OpenTabResponse](t, rec)
	assert.True(t, opened.Created)
	assert.Equal(t, "Sprint", opened.Tab.Title)

	rec = env.do(t, http.MethodGet, "/api/workspace", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ws := decodeBody[schema.WorkspaceResponse](t, rec)
	require.Len(t, ws.Snapshot.Tabs, 2)
	assert.Equal(t, opened.Tab.Key, ws.Snapshot.ActiveTab)

	// Another user gets a fresh workspace.
	rec = env.do(t, http.MethodGet, "/api/workspace", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[schema.WorkspaceResponse](t, rec).Snapshot.Tabs, 1)
}

func TestTabEndpoints(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	rec := env.do(t, http.MethodPost, "/api/nav/click", "alice", `{"index":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	teams := decodeBody[schema.OpenTabResponse](t, rec).Tab

	rec = env.do(t, http.MethodPost, "/api/tabs/pin", "alice", `{"key":"`+string(teams.Key)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[schema.TogglePinResponse](t, rec).Pinned)

	rec = env.do(t, http.MethodPost, "/api/tabs/activate", "alice", `{"index":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, schema.ViewDashboard, decodeBody[schema.ActivateTabResponse](t, rec).Tab.Type)

	rec = env.do(t, http.MethodPost, "/api/tabs/drag", "alice", `{"index":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, schema.ViewTeams, decodeBody[schema.DragResponse](t, rec).Payload.Type)

	rec = env.do(t, http.MethodPost, "/api/tabs/close", "alice", `{"key":"`+string(teams.Key)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[schema.CloseTabResponse](t, rec).Snapshot.Tabs, 1)

	rec = env.do(t, http.MethodPost, "/api/tabs/new", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, schema.ViewNewTab, decodeBody[schema.OpenTabResponse](t, rec).Tab.Type)

	rec = env.do(t, http.MethodGet, "/api/nav", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody[schema.ListNavResponse](t, rec).Items)
}

func TestGridEndpoints(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	rec := env.do(t, http.MethodPost, "/api/mode", "alice", `{"grid_mode":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[schema.SetGridModeResponse](t, rec).GridMode)

	rec = env.do(t, http.MethodPost, "/api/grid/cells", "alice", `{"type":"calendar"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cell := decodeBody[schema.AddCellResponse](t, rec).Cell

	rec = env.do(t, http.MethodPost, "/api/grid/drop", "alice", `{"type":"reports","title":"KPIs"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "KPIs", decodeBody[schema.AddCellResponse](t, rec).Cell.Title)

	rec = env.do(t, http.MethodPost, "/api/grid/cells/"+string(cell.ID)+"/zoom", "alice", `{"action":"in"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 1.1, decodeBody[schema.ZoomCellResponse](t, rec).Zoom, 1e-9)

	rec = env.do(t, http.MethodPost, "/api/grid/breakpoint", "alice", `{"width":500}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody[schema.SetBreakpointResponse](t, rec).Breakpoint)

	rec = env.do(t, http.MethodPost, "/api/grid/cells/"+string(cell.ID)+"/expand", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	expanded := decodeBody[schema.ActivateTabResponse](t, rec)
	assert.Equal(t, schema.ViewCalendar, expanded.Tab.Type)
	assert.False(t, expanded.Snapshot.GridMode)

	rec = env.do(t, http.MethodDelete, "/api/grid/cells/"+string(cell.ID), "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[schema.WorkspaceResponse](t, rec).Snapshot.Grid.Cells, 1)

	rec = env.do(t, http.MethodGet, "/api/render", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decodeBody[schema.RenderWorkspaceResponse](t, rec).View.ActiveTab)
}

func TestExportImportRoundTrip(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/grid/cells", "alice", `{"type":"tasks"}`).Code)

	rec := env.do(t, http.MethodGet, "/api/arrangement", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	blob := rec.Body.String()

	rec = env.do(t, http.MethodPut, "/api/arrangement", "bob", blob)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cells := decodeBody[schema.WorkspaceResponse](t, rec).Snapshot.Grid.Cells
	require.Len(t, cells, 1)
	assert.Equal(t, schema.ViewTasks, cells[0].Type)

	rec = env.do(t, http.MethodPut, "/api/arrangement", "bob", `{"cells":"nope"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArrangementLibraryEndpoints(t *testing.T) {
	ctx := context.Background()
	library, err := persist.OpenLibrary(ctx, filepath.Join(t.TempDir(), "arrangements.sqlite"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = library.Close() })
	env := newTestEnv(t, Config{}, library)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/grid/cells", "alice", `{"type":"reports"}`).Code)
	rec := env.do(t, http.MethodPost, "/api/arrangements", "alice", `{"name":"weekly"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeBody[schema.SaveArrangementResponse](t, rec).Arrangement.Cells)

	rec = env.do(t, http.MethodGet, "/api/arrangements", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[schema.ListArrangementsResponse](t, rec).Arrangements, 1)

	rec = env.do(t, http.MethodPost, "/api/arrangements/restore", "alice", `{"name":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/arrangements/restore", "alice", `{"name":"weekly"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/arrangements/weekly", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[schema.ListArrangementsResponse](t, rec).Arrangements)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodPost, "/api/tabs/open", `{"type":"bogus"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/tabs/open", `{"type":"tasks","extra":1}`, http.StatusBadRequest},
		{http.MethodPost, "/api/tabs/activate", `{"index":7}`, http.StatusBadRequest},
		{http.MethodPost, "/api/tabs/close", `{"key":"nope"}`, http.StatusNotFound},
		{http.MethodPost, "/api/nav/click", `{"index":99}`, http.StatusBadRequest},
		{http.MethodPost, "/api/grid/drop", `{"title":"no type"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/grid/breakpoint", `{"name":"huge"}`, http.StatusBadRequest},
		{http.MethodDelete, "/api/grid/cells/missing", ``, http.StatusNotFound},
		{http.MethodPost, "/api/arrangements", `{"name":"x"}`, http.StatusServiceUnavailable},
		{http.MethodGet, "/api/tabs/open", ``, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		rec := env.do(t, tc.method, tc.path, "alice", tc.body)
		assert.Equal(t, tc.want, rec.Code, "%s %s: %s", tc.method, tc.path, rec.Body.String())
		if tc.want != http.StatusMethodNotAllowed {
			assert.Contains(t, rec.Body.String(), `"error"`)
		}
	}
}

func TestTabRefRequired(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	rec := env.do(t, http.MethodPost, "/api/nav/click", "alice", `{"index":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, tc := range []struct {
		path string
		body string
	}{
		{"/api/tabs/close", ""},
		{"/api/tabs/close", "{}"},
		{"/api/tabs/activate", ""},
		{"/api/tabs/activate", `{"key":""}`},
		{"/api/tabs/drag", ""},
		{"/api/nav/click", "{}"},
		{"/api/nav/drag", ""},
	} {
		rec := env.do(t, http.MethodPost, tc.path, "alice", tc.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%s %q: %s", tc.path, tc.body, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/workspace", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ws := decodeBody[schema.WorkspaceResponse](t, rec)
	require.Len(t, ws.Snapshot.Tabs, 2)
	assert.Equal(t, schema.ViewDashboard, ws.Snapshot.Tabs[0].Type)
	assert.Equal(t, ws.Snapshot.Tabs[1].Key, ws.Snapshot.ActiveTab)
}

type companySource struct{}

func (companySource) List(_ context.Context, table string, _ map[string]string) ([]backend.Record, error) {
	if table == views.TableCompanies {
		return []backend.Record{{"id": "c1", "name": "Acme"}, {"id": "c2", "name": "Globex"}}, nil
	}
	return nil, nil
}

func (companySource) Get(context.Context, string, string) (backend.Record, error) {
	return nil, backend.ErrNotFound
}

func TestFollowLink(t *testing.T) {
	env := newSourcedTestEnv(t, Config{}, nil, companySource{})
	rec := env.do(t, http.MethodPost, "/api/nav/click", "alice", `{"index":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/render", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rendered := decodeBody[schema.RenderWorkspaceResponse](t, rec)
	require.NotNil(t, rendered.View.ActiveTab)
	require.Len(t, rendered.View.ActiveTab.Links, 2)
	assert.Equal(t, schema.ViewCompanyProjects, rendered.View.ActiveTab.Links[1].Type)

	rec = env.do(t, http.MethodPost, "/api/links/follow", "alice", `{"index":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	opened := decodeBody[schema.OpenTabResponse](t, rec)
	assert.True(t, opened.Created)
	assert.Equal(t, schema.ViewCompanyProjects, opened.Tab.Type)
	assert.Equal(t, "Globex Projects", opened.Tab.Title)
	assert.Equal(t, "c2", opened.Tab.Context["companyId"])
	assert.Equal(t, opened.Tab.Key, opened.Snapshot.ActiveTab)

	rec = env.do(t, http.MethodPost, "/api/links/follow", "alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodPost, "/api/links/follow", "alice", `{"index":1,"cell":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	// The company-projects view has no rows for this source.
	rec = env.do(t, http.MethodPost, "/api/links/follow", "alice", `{"index":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestMissingUserRejected(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	env.server.cfg.DefaultUser = ""
	rec := env.do(t, http.MethodGet, "/api/workspace", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCommandEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	rec := env.do(t, http.MethodPost, "/api/command", "alice", `{"input":"/nav 4"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"tab opened: Tasks"}, decodeBody[command.Result](t, rec).Lines)

	rec = env.do(t, http.MethodPost, "/api/command", "alice", `{"input":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/command", "alice", `{"input":"/zoom"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Config{RateLimit: 0.001, RateBurst: 1}, nil)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/workspace", "alice", "").Code)
	rec := env.do(t, http.MethodGet, "/api/workspace", "alice", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestBasePath(t *testing.T) {
	env := newTestEnv(t, Config{BasePath: "/desk/"}, nil)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/desk/api/workspace", "alice", "").Code)
	assert.Equal(t, http.StatusTemporaryRedirect, env.do(t, http.MethodGet, "/desk", "alice", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/workspace", "alice", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/workspace", "alice", "").Code)
	rec = env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pmdesk_http_requests_total{method="GET",route="GET /api/workspace",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), `pmdesk_workspace_operations_total{op="workspace get",status="ok"}`)
}

func TestStreamSendsSnapshotThenEvents(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)
	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	req.Header.Set("X-Pmdesk-User", "alice")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan StreamEvent, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var event StreamEvent
				if json.Unmarshal([]byte(data), &event) == nil {
					events <- event
				}
			}
		}
		close(events)
	}()

	first := <-events
	require.Equal(t, StreamSnapshot, first.Type)
	require.NotNil(t, first.Snapshot)
	require.Len(t, first.Snapshot.Tabs, 1)

	require.Eventually(t, func() bool { return env.hub.Subscribers("alice") == 1 }, 2*time.Second, 10*time.Millisecond)
	rec := env.do(t, http.MethodPost, "/api/nav/click", "alice", `{"index":5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case event := <-events:
		assert.Equal(t, StreamWorkspace, event.Type)
		assert.Equal(t, schema.EventTabOpened, event.Event)
		assert.Equal(t, uint64(1), event.Seq)
		require.NotNil(t, event.Snapshot)
		assert.Len(t, event.Snapshot.Tabs, 2)
	case <-ctx.Done():
		t.Fatal("timed out waiting for workspace event")
	}
}
