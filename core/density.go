package core

import "pkt.systems/pmdesk/schema"

// Area thresholds, in grid units, for content density.
const (
	CompactMaxArea = 4
	MediumMaxArea  = 12
)

// DensityFor picks a content density from an allocated width and height.
// Non-positive dimensions are compact.
func DensityFor(width, height int) schema.Density {
	if width <= 0 || height <= 0 {
		return schema.DensityCompact
	}
	area := width * height
	switch {
	case area <= CompactMaxArea:
		return schema.DensityCompact
	case area <= MediumMaxArea:
		return schema.DensityMedium
	default:
		return schema.DensityFull
	}
}

// DensityForCell applies DensityFor to a cell's current geometry.
func DensityForCell(cell schema.GridCell) schema.Density {
	return DensityFor(cell.W, cell.H)
}
