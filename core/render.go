package core

import (
	"context"
	"fmt"

	"pkt.systems/pmdesk/schema"
)

// RenderWorkspace renders the active tab in tab mode or every cell in grid
// mode. It reads only the snapshot so callers can run it without holding locks.
// A failing renderer only affects its own view.
func RenderWorkspace(ctx context.Context, registry *ViewRegistry, snapshot schema.WorkspaceSnapshot, openTab OpenTabFunc) schema.WorkspaceView {
	view := schema.WorkspaceView{Snapshot: snapshot}
	if !snapshot.GridMode {
		for _, tab := range snapshot.Tabs {
			if tab.Key != snapshot.ActiveTab {
				continue
			}
			content := RenderView(ctx, registry, tab.Type, tab.Title, tab.Context, schema.DensityFull, openTab)
			view.ActiveTab = &content
			break
		}
		return view
	}
	view.Cells = make([]schema.RenderedCell, 0, len(snapshot.Grid.Cells))
	for _, cell := range snapshot.Grid.Cells {
		zoom, ok := snapshot.Grid.Zoom[cell.ID]
		if !ok {
			zoom = DefaultZoom
		}
		view.Cells = append(view.Cells, schema.RenderedCell{
			Cell:    cell,
			Zoom:    zoom,
			Content: RenderView(ctx, registry, cell.Type, cell.Title, cell.Context, DensityForCell(cell), openTab),
		})
	}
	return view
}

// RenderView renders one view instance.
func RenderView(ctx context.Context, registry *ViewRegistry, viewType schema.ViewType, title string, viewCtx schema.ViewContext, density schema.Density, openTab OpenTabFunc) schema.ViewContent {
	return renderView(ctx, registry, viewType, title, viewCtx, density, openTab, 0)
}

// FollowLink renders a view and returns its n-th (1-based) link as reported
// through the renderer's OpenTab callback.
func FollowLink(ctx context.Context, registry *ViewRegistry, viewType schema.ViewType, title string, viewCtx schema.ViewContext, density schema.Density, n int) (schema.DragPayload, error) {
	if n <= 0 {
		return schema.DragPayload{}, fmt.Errorf("%w: %d", schema.ErrLinkNotFound, n)
	}
	var (
		target   schema.DragPayload
		followed bool
	)
	content := renderView(ctx, registry, viewType, title, viewCtx, density, func(t schema.ViewType, title string, viewCtx schema.ViewContext) {
		target = schema.DragPayload{Type: t, Title: title, Context: schema.CloneContext(viewCtx)}
		followed = true
	}, n)
	if content.Error != "" {
		return schema.DragPayload{}, fmt.Errorf("render %s: %s", viewType, content.Error)
	}
	if !followed {
		return schema.DragPayload{}, fmt.Errorf("%w: %d of %d", schema.ErrLinkNotFound, n, len(content.Links))
	}
	return target, nil
}

func renderView(ctx context.Context, registry *ViewRegistry, viewType schema.ViewType, title string, viewCtx schema.ViewContext, density schema.Density, openTab OpenTabFunc, follow int) schema.ViewContent {
	content := schema.ViewContent{Type: viewType, Title: title, Density: density}
	desc, err := registry.Resolve(viewType)
	if err != nil {
		content.Error = err.Error()
		return content
	}
	if content.Title == "" {
		content.Title = desc.DefaultTitle
	}
	if desc.Render == nil {
		return content
	}
	if openTab == nil {
		openTab = func(schema.ViewType, string, schema.ViewContext) {}
	}
	rendered, err := desc.Render(ctx, RenderRequest{
		Title:   content.Title,
		Context: schema.CloneContext(viewCtx),
		Density: density,
		OpenTab: openTab,
		Follow:  follow,
	})
	if err != nil {
		content.Error = err.Error()
		return content
	}
	rendered.Type = viewType
	rendered.Density = density
	if rendered.Title == "" {
		rendered.Title = content.Title
	}
	return rendered
}
