package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"pkt.systems/pmdesk/schema"
)

// Alternate key names accepted on import.
var (
	sheetKeys  = []string{"sheets", "cells"}
	layoutKeys = []string{"layouts", "layoutsByBreakpoint"}
)

// ParseArrangement decodes an arrangement blob. Missing or null cell and layout
// keys are rejected with ErrMalformedSnapshot.
func ParseArrangement(data []byte) (schema.ArrangementBlob, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return schema.ArrangementBlob{}, fmt.Errorf("%w: %v", schema.ErrMalformedSnapshot, err)
	}
	sheets, ok := firstPresent(raw, sheetKeys)
	if !ok {
		return schema.ArrangementBlob{}, fmt.Errorf("%w: missing cells", schema.ErrMalformedSnapshot)
	}
	layouts, ok := firstPresent(raw, layoutKeys)
	if !ok {
		return schema.ArrangementBlob{}, fmt.Errorf("%w: missing layouts", schema.ErrMalformedSnapshot)
	}
	var blob schema.ArrangementBlob
	if err := json.Unmarshal(sheets, &blob.Sheets); err != nil {
		return schema.ArrangementBlob{}, fmt.Errorf("%w: cells: %v", schema.ErrMalformedSnapshot, err)
	}
	if err := json.Unmarshal(layouts, &blob.Layouts); err != nil {
		return schema.ArrangementBlob{}, fmt.Errorf("%w: layouts: %v", schema.ErrMalformedSnapshot, err)
	}
	if zoom, ok := raw["zoom"]; ok && !isNull(zoom) {
		if err := json.Unmarshal(zoom, &blob.Zoom); err != nil {
			return schema.ArrangementBlob{}, fmt.Errorf("%w: zoom: %v", schema.ErrMalformedSnapshot, err)
		}
	}
	if ts, ok := raw["timestamp"]; ok && !isNull(ts) {
		if err := json.Unmarshal(ts, &blob.Timestamp); err != nil {
			return schema.ArrangementBlob{}, fmt.Errorf("%w: timestamp: %v", schema.ErrMalformedSnapshot, err)
		}
	}
	if err := ValidateArrangement(blob); err != nil {
		return schema.ArrangementBlob{}, err
	}
	return blob, nil
}

// ValidateArrangement rejects blobs whose cells lack ids or repeat one.
func ValidateArrangement(blob schema.ArrangementBlob) error {
	seen := make(map[schema.CellID]struct{}, len(blob.Sheets))
	for i, sheet := range blob.Sheets {
		if sheet.ID == "" {
			return fmt.Errorf("%w: cell %d has no id", schema.ErrMalformedSnapshot, i)
		}
		if _, dup := seen[sheet.ID]; dup {
			return fmt.Errorf("%w: duplicate cell id %q", schema.ErrMalformedSnapshot, sheet.ID)
		}
		seen[sheet.ID] = struct{}{}
	}
	return nil
}

// DecodeDragPayload strictly decodes a drop payload.
func DecodeDragPayload(data []byte) (schema.DragPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var payload schema.DragPayload
	if err := dec.Decode(&payload); err != nil {
		return schema.DragPayload{}, fmt.Errorf("%w: %v", schema.ErrInvalidDragPayload, err)
	}
	viewType, err := schema.NormalizeViewType(string(payload.Type))
	if err != nil {
		return schema.DragPayload{}, fmt.Errorf("%w: missing view type", schema.ErrInvalidDragPayload)
	}
	payload.Type = viewType
	return payload, nil
}

// Export returns the arrangement blob for the current grid, zoom included.
func (g *GridArrangement) Export() schema.ArrangementBlob {
	zoom := make(map[schema.CellID]float64, len(g.zoom))
	for id, z := range g.zoom {
		zoom[id] = z
	}
	return schema.ArrangementBlob{
		Sheets:    g.Cells(),
		Layouts:   g.Layouts(),
		Zoom:      zoom,
		Timestamp: g.now().UTC(),
	}
}

// SaveSnapshot serializes the arrangement.
func (g *GridArrangement) SaveSnapshot() ([]byte, error) {
	data, err := json.MarshalIndent(g.Export(), "", "  ")
	if err != nil {
		g.log.Warn("grid snapshot save failed", "err", err)
		return nil, err
	}
	return data, nil
}

// LoadSnapshot parses and restores a serialized arrangement. A malformed blob
// leaves the grid untouched.
func (g *GridArrangement) LoadSnapshot(data []byte) (int, error) {
	blob, err := ParseArrangement(data)
	if err != nil {
		g.log.Error("grid snapshot rejected", "err", err)
		return 0, err
	}
	return g.Restore(blob)
}

// Restore replaces the grid with blob. Cells of unknown types are dropped along
// with their layout entries; configured breakpoints missing from the blob are
// rebuilt from cell geometry. It returns the number of dropped cells and entries.
func (g *GridArrangement) Restore(blob schema.ArrangementBlob) (int, error) {
	if err := ValidateArrangement(blob); err != nil {
		g.log.Error("grid snapshot rejected", "err", err)
		return 0, err
	}
	dropped := 0
	cells := make(map[schema.CellID]*schema.GridCell, len(blob.Sheets))
	order := make([]schema.CellID, 0, len(blob.Sheets))
	for _, sheet := range blob.Sheets {
		desc, err := g.registry.Resolve(sheet.Type)
		if err != nil {
			g.log.Warn("grid restore dropped cell", "cell", sheet.ID, "type", sheet.Type, "reason", "unknown view")
			dropped++
			continue
		}
		cell := sheet
		if cell.Title == "" {
			cell.Title = desc.DefaultTitle
		}
		cell.Context = schema.CloneContext(sheet.Context)
		if cell.W <= 0 {
			cell.W = desc.Cell.W
		}
		if cell.H <= 0 {
			cell.H = desc.Cell.H
		}
		if cell.MinW <= 0 {
			cell.MinW = min(desc.Cell.MinW, cell.W)
		}
		if cell.MinH <= 0 {
			cell.MinH = min(desc.Cell.MinH, cell.H)
		}
		cell.X = max(cell.X, 0)
		cell.Y = max(cell.Y, 0)
		cells[cell.ID] = &cell
		order = append(order, cell.ID)
	}

	layouts := make(schema.Layouts, len(g.breakpoints))
	for _, bp := range g.breakpoints {
		entries, ok := blob.Layouts[bp.Name]
		if !ok {
			rebuilt := make([]schema.LayoutEntry, 0, len(order))
			for _, id := range order {
				entry := entryFor(*cells[id], bp.Columns)
				entry.X = min(cells[id].X, max(bp.Columns-entry.W, 0))
				rebuilt = append(rebuilt, entry)
			}
			layouts[bp.Name] = rebuilt
			continue
		}
		kept := make([]schema.LayoutEntry, 0, len(entries))
		seen := make(map[schema.CellID]struct{}, len(entries))
		for _, entry := range entries {
			if cells[entry.CellID] == nil {
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
		layouts[bp.Name] = kept
	}

	zoom := make(map[schema.CellID]float64, len(blob.Zoom))
	for id, z := range blob.Zoom {
		if cells[id] == nil {
			continue
		}
		zoom[id] = clampZoom(z)
	}

	g.cells = cells
	g.order = order
	g.layouts = layouts
	g.zoom = zoom
	g.syncAll()
	if dropped > 0 {
		g.log.Warn("grid restore pruned entries", "dropped", dropped)
	}
	g.log.Debug("grid restored", "cells", len(order), "saved_at", blob.Timestamp.Format(time.RFC3339))
	return dropped, nil
}

func firstPresent(raw map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, key := range keys {
		if value, ok := raw[key]; ok && !isNull(value) {
			return value, true
		}
	}
	return nil, false
}

func isNull(value json.RawMessage) bool {
	return string(bytes.TrimSpace(value)) == "null"
}
