package views

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"pkt.systems/pmdesk/core"
	"pkt.systems/pmdesk/internal/backend"
	"pkt.systems/pmdesk/schema"
)

// errOffline is returned when no backend is configured.
var errOffline = errors.New("backend not configured")

// rowLimit caps list rows per density.
func rowLimit(density schema.Density) int {
	switch density {
	case schema.DensityCompact:
		return 3
	case schema.DensityMedium:
		return 8
	default:
		return 25
	}
}

type renderers struct {
	source Source
}

func (r renderers) dashboard(ctx context.Context, req core.RenderRequest) (schema.ViewContent, error) {
	if r.source == nil {
		return schema.ViewContent{}, errOffline
	}
	counts := make(map[string]int, 4)
	var openTasks []backend.Record
	for _, table := range []string{TableCompanies, TableProjects, TableTeams, TableTasks} {
		rows, err := r.source.List(ctx, table, nil)
		if err != nil {
			return schema.ViewContent{}, err
		}
		counts[table] = len(rows)
		if table == TableTasks {
			for _, row := range rows {
				if !isDone(row) {
					openTasks = append(openTasks, row)
				}
			}
		}
	}
	headline := fmt.Sprintf("%d projects, %d open tasks", counts[TableProjects], len(openTasks))
	if req.Density == schema.DensityCompact {
		return schema.ViewContent{Lines: []string{headline}}, nil
	}
	lines := []string{
		headline,
		fmt.Sprintf("companies: %d", counts[TableCompanies]),
		fmt.Sprintf("teams: %d", counts[TableTeams]),
		fmt.Sprintf("tasks: %d", counts[TableTasks]),
	}
	if req.Density == schema.DensityFull && len(openTasks) > 0 {
		lines = append(lines, "", "open tasks:")
		for i, row := range openTasks {
			if i == rowLimit(schema.DensityMedium) {
				lines = append(lines, fmt.Sprintf("  ... %d more", len(openTasks)-i))
				break
			}
			lines = append(lines, "  "+row.String("title"))
		}
	}
	return schema.ViewContent{Lines: lines}, nil
}

func (r renderers) newTab(_ context.Context, req core.RenderRequest) (schema.ViewContent, error) {
	lines := []string{"Pick a view from the sidebar or drag one onto the grid."}
	if req.Density != schema.DensityCompact {
		nav := core.DefaultNavEntries()
		for _, entry := range nav {
			lines = append(lines, fmt.Sprintf("  %d  %s", entry.Index, entry.Label))
		}
	}
	return schema.ViewContent{Lines: lines}, nil
}

// linkFunc maps a shown record to the view it opens.
type linkFunc func(row backend.Record) (schema.DragPayload, bool)

// list renders a table, filtered by the string values of the view context.
// Each shown row contributes one link when link is set.
func (r renderers) list(table string, titleField, statusField string, link linkFunc) core.RenderFunc {
	return func(ctx context.Context, req core.RenderRequest) (schema.ViewContent, error) {
		if r.source == nil {
			return schema.ViewContent{}, errOffline
		}
		rows, err := r.source.List(ctx, table, contextFilters(req.Context))
		if err != nil {
			return schema.ViewContent{}, err
		}
		if len(rows) == 0 {
			return schema.ViewContent{Lines: []string{"no " + table}}, nil
		}
		limit := rowLimit(req.Density)
		lines := make([]string, 0, min(limit, len(rows))+1)
		var links []schema.DragPayload
		for i, row := range rows {
			if i == limit {
				lines = append(lines, fmt.Sprintf("... %d more", len(rows)-i))
				break
			}
			if link != nil {
				if target, ok := link(row); ok {
					links = append(links, target)
				}
			}
			switch req.Density {
			case schema.DensityCompact:
				lines = append(lines, row.String(titleField))
			case schema.DensityMedium:
				lines = append(lines, joinNonEmpty(" | ", row.String(titleField), row.String(statusField)))
			default:
				lines = append(lines, joinNonEmpty(" | ", row.ID(), row.String(titleField), row.String(statusField)))
			}
		}
		return follow(req, schema.ViewContent{Lines: lines, Links: links}), nil
	}
}

// detail renders one record named by the "id" context key.
func (r renderers) detail(table string, links func(row backend.Record) []schema.DragPayload, fields ...string) core.RenderFunc {
	return func(ctx context.Context, req core.RenderRequest) (schema.ViewContent, error) {
		if r.source == nil {
			return schema.ViewContent{}, errOffline
		}
		id := contextString(req.Context, "id")
		if id == "" {
			return schema.ViewContent{}, fmt.Errorf("%s: missing id in view context", table)
		}
		row, err := r.source.Get(ctx, table, id)
		if err != nil {
			return schema.ViewContent{}, err
		}
		title := ""
		if len(fields) > 0 {
			title = row.String(fields[0])
		}
		var related []schema.DragPayload
		if links != nil {
			related = links(row)
		}
		if req.Density == schema.DensityCompact {
			return follow(req, schema.ViewContent{Title: title, Lines: []string{title}, Links: related}), nil
		}
		shown := fields
		if req.Density == schema.DensityMedium && len(shown) > 3 {
			shown = shown[:3]
		}
		lines := make([]string, 0, len(shown))
		for _, field := range shown {
			if value := row.String(field); value != "" {
				lines = append(lines, field+": "+value)
			}
		}
		return follow(req, schema.ViewContent{Title: title, Lines: lines, Links: related}), nil
	}
}

// follow opens the requested link of content, if it has one.
func follow(req core.RenderRequest, content schema.ViewContent) schema.ViewContent {
	if req.OpenTab == nil || req.Follow <= 0 || req.Follow > len(content.Links) {
		return content
	}
	link := content.Links[req.Follow-1]
	req.OpenTab(link.Type, link.Title, schema.CloneContext(link.Context))
	return content
}

func (r renderers) calendar(ctx context.Context, req core.RenderRequest) (schema.ViewContent, error) {
	if r.source == nil {
		return schema.ViewContent{}, errOffline
	}
	rows, err := r.source.List(ctx, TableEvents, contextFilters(req.Context))
	if err != nil {
		return schema.ViewContent{}, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].String("start") < rows[j].String("start")
	})
	if len(rows) == 0 {
		return schema.ViewContent{Lines: []string{"no upcoming events"}}, nil
	}
	limit := rowLimit(req.Density)
	lines := make([]string, 0, min(limit, len(rows)))
	for i, row := range rows {
		if i == limit {
			break
		}
		if req.Density == schema.DensityCompact {
			lines = append(lines, row.String("title"))
			continue
		}
		lines = append(lines, joinNonEmpty("  ", row.String("start"), row.String("title")))
	}
	return schema.ViewContent{Lines: lines}, nil
}

func (r renderers) reports(ctx context.Context, req core.RenderRequest) (schema.ViewContent, error) {
	if r.source == nil {
		return schema.ViewContent{}, errOffline
	}
	tasks, err := r.source.List(ctx, TableTasks, nil)
	if err != nil {
		return schema.ViewContent{}, err
	}
	done := 0
	byStatus := make(map[string]int)
	for _, row := range tasks {
		status := row.String("status")
		if status == "" {
			status = "unknown"
		}
		byStatus[status]++
		if isDone(row) {
			done++
		}
	}
	pct := 0
	if len(tasks) > 0 {
		pct = done * 100 / len(tasks)
	}
	headline := fmt.Sprintf("%d%% of %d tasks done", pct, len(tasks))
	if req.Density == schema.DensityCompact {
		return schema.ViewContent{Lines: []string{headline}}, nil
	}
	statuses := make([]string, 0, len(byStatus))
	for status := range byStatus {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	lines := []string{headline}
	for _, status := range statuses {
		lines = append(lines, fmt.Sprintf("  %-12s %d", status, byStatus[status]))
	}
	if req.Density == schema.DensityFull {
		projects, err := r.source.List(ctx, TableProjects, nil)
		if err != nil {
			return schema.ViewContent{}, err
		}
		lines = append(lines, fmt.Sprintf("projects tracked: %d", len(projects)))
	}
	return schema.ViewContent{Lines: lines}, nil
}

func isDone(row backend.Record) bool {
	switch strings.ToLower(row.String("status")) {
	case "done", "completed", "closed":
		return true
	}
	return false
}

func contextFilters(viewCtx schema.ViewContext) map[string]string {
	if len(viewCtx) == 0 {
		return nil
	}
	filters := make(map[string]string, len(viewCtx))
	for key, value := range viewCtx {
		if key == "id" {
			continue
		}
		switch v := value.(type) {
		case string:
			filters[key] = v
		case float64, bool:
			filters[key] = fmt.Sprint(v)
		}
	}
	return filters
}

func contextString(viewCtx schema.ViewContext, key string) string {
	return backend.Record(viewCtx).String(key)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, sep)
}
