package core

import (
	"context"
	"fmt"
	"sort"

	"pkt.systems/pmdesk/schema"
)

// Default cell geometry used when a descriptor leaves CellSize fields zero.
const (
	DefaultCellW    = 6
	DefaultCellH    = 4
	DefaultCellMinW = 4
	DefaultCellMinH = 3
)

// OpenTabFunc lets a rendered view ask the shell to open another view.
type OpenTabFunc func(viewType schema.ViewType, title string, viewCtx schema.ViewContext)

// RenderRequest is handed to a view renderer.
type RenderRequest struct {
	Title   string
	Context schema.ViewContext
	Density schema.Density
	OpenTab OpenTabFunc
	// Follow is the 1-based link the renderer should open through OpenTab.
	// Zero only renders.
	Follow int
}

// RenderFunc produces view content. Renderers own their data fetching and
// report failures through the returned error.
type RenderFunc func(ctx context.Context, req RenderRequest) (schema.ViewContent, error)

// CellSize is the default grid footprint for a view kind.
type CellSize struct {
	W    int
	H    int
	MinW int
	MinH int
}

func (c CellSize) withDefaults() CellSize {
	if c.W <= 0 {
		c.W = DefaultCellW
	}
	if c.H <= 0 {
		c.H = DefaultCellH
	}
	if c.MinW <= 0 {
		c.MinW = DefaultCellMinW
	}
	if c.MinH <= 0 {
		c.MinH = DefaultCellMinH
	}
	if c.MinW > c.W {
		c.MinW = c.W
	}
	if c.MinH > c.H {
		c.MinH = c.H
	}
	return c
}

// ViewDescriptor defines a view kind.
type ViewDescriptor struct {
	Type         schema.ViewType
	DefaultTitle string
	Render       RenderFunc
	Cell         CellSize
}

// ViewRegistry is the fixed table of view kinds.
type ViewRegistry struct {
	views map[schema.ViewType]ViewDescriptor
}

// NewViewRegistry builds a registry from descriptors. Types must be unique and non-empty.
func NewViewRegistry(descs ...ViewDescriptor) (*ViewRegistry, error) {
	views := make(map[schema.ViewType]ViewDescriptor, len(descs))
	for _, desc := range descs {
		viewType, err := schema.NormalizeViewType(string(desc.Type))
		if err != nil {
			return nil, fmt.Errorf("view type %q: %w", desc.Type, err)
		}
		if _, ok := views[viewType]; ok {
			return nil, fmt.Errorf("duplicate view type %q", viewType)
		}
		desc.Type = viewType
		if desc.DefaultTitle == "" {
			desc.DefaultTitle = string(viewType)
		}
		desc.Cell = desc.Cell.withDefaults()
		views[viewType] = desc
	}
	return &ViewRegistry{views: views}, nil
}

// Resolve looks up a view kind.
func (r *ViewRegistry) Resolve(viewType schema.ViewType) (ViewDescriptor, error) {
	if r == nil {
		return ViewDescriptor{}, fmt.Errorf("%w: %q", schema.ErrUnknownView, viewType)
	}
	desc, ok := r.views[viewType]
	if !ok {
		return ViewDescriptor{}, fmt.Errorf("%w: %q", schema.ErrUnknownView, viewType)
	}
	return desc, nil
}

// Types lists the registered view types in sorted order.
func (r *ViewRegistry) Types() []schema.ViewType {
	if r == nil {
		return nil
	}
	out := make([]schema.ViewType, 0, len(r.views))
	for viewType := range r.views {
		out = append(out, viewType)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
