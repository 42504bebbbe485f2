package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

var allViewTypes = []schema.ViewType{
	schema.ViewDashboard,
	schema.ViewNewTab,
	schema.ViewCompanies,
	schema.ViewCompanyDetails,
	schema.ViewProjects,
	schema.ViewCompanyProjects,
	schema.ViewProjectDetails,
	schema.ViewTeams,
	schema.ViewTeamDetails,
	schema.ViewTasks,
	schema.ViewTaskDetails,
	schema.ViewCalendar,
	schema.ViewReports,
}

func newTestRegistry(t *testing.T) *ViewRegistry {
	t.Helper()
	descs := make([]ViewDescriptor, 0, len(allViewTypes))
	for _, viewType := range allViewTypes {
		viewType := viewType
		descs = append(descs, ViewDescriptor{
			Type:         viewType,
			DefaultTitle: string(viewType),
			Render: func(_ context.Context, req RenderRequest) (schema.ViewContent, error) {
				if req.Context["fail"] == true {
					return schema.ViewContent{}, errors.New("backend down")
				}
				content := schema.ViewContent{Lines: []string{fmt.Sprintf("%s:%s", viewType, req.Density)}}
				if viewType == schema.ViewCompanies {
					content.Links = []schema.DragPayload{{Type: schema.ViewCompanyProjects, Title: "Acme Projects", Context: schema.ViewContext{"companyId": "c1"}}}
				}
				if req.Follow > 0 && req.Follow <= len(content.Links) {
					link := content.Links[req.Follow-1]
					req.OpenTab(link.Type, link.Title, link.Context)
				}
				return content, nil
			},
		})
	}
	registry, err := NewViewRegistry(descs...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return registry
}

// fakeClock advances one millisecond on every read so generated keys differ.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func fixedNow() time.Time {
	return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func sequentialIDs() func() schema.CellID {
	n := 0
	return func() schema.CellID {
		n++
		return schema.CellID(fmt.Sprintf("cell-%d", n))
	}
}

func newTestTabs(t *testing.T, logger pslog.Logger) *TabSession {
	t.Helper()
	tabs, err := NewTabSession(TabSessionConfig{
		Registry: newTestRegistry(t),
		Logger:   logger,
		Now:      newFakeClock().Now,
	})
	if err != nil {
		t.Fatalf("new tab session: %v", err)
	}
	return tabs
}

func newTestGrid(t *testing.T, logger pslog.Logger) *GridArrangement {
	t.Helper()
	grid, err := NewGridArrangement(GridConfig{
		Registry: newTestRegistry(t),
		Logger:   logger,
		NewID:    sequentialIDs(),
		Now:      fixedNow,
	})
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	return grid
}

func newTestShell(t *testing.T, logger pslog.Logger) *WorkspaceShell {
	t.Helper()
	registry := newTestRegistry(t)
	nav, err := NewNavMap(registry, DefaultNavEntries())
	if err != nil {
		t.Fatalf("new nav map: %v", err)
	}
	shell, err := NewWorkspaceShell(ShellConfig{
		Registry:  registry,
		Nav:       nav,
		Logger:    logger,
		Now:       newFakeClock().Now,
		NewCellID: sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("new shell: %v", err)
	}
	return shell
}

type logEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.DebugLevel,
	})
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *logCapture) Entries() []logEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var entries []logEntry
	for _, line := range bytes.Split(c.buf.Bytes(), []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		payload := map[string]any{}
		if err := json.Unmarshal(line, &payload); err != nil {
			continue
		}
		entry := logEntry{Fields: payload}
		if value, ok := payload["level"].(string); ok {
			entry.Level = value
		} else if value, ok := payload["lvl"].(string); ok {
			entry.Level = value
		}
		if value, ok := payload["message"].(string); ok {
			entry.Message = value
		} else if value, ok := payload["msg"].(string); ok {
			entry.Message = value
		}
		entries = append(entries, entry)
	}
	return entries
}

func (c *logCapture) has(message string) bool {
	for _, entry := range c.Entries() {
		if entry.Message == message {
			return true
		}
	}
	return false
}

func mustJSON(t *testing.T, value any) []byte {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
