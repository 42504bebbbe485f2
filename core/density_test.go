package core

import (
	"testing"

	"pkt.systems/pmdesk/schema"
)

func TestDensityFor(t *testing.T) {
	cases := []struct {
		w, h int
		want schema.Density
	}{
		{2, 2, schema.DensityCompact},
		{1, 4, schema.DensityCompact},
		{5, 1, schema.DensityMedium},
		{4, 3, schema.DensityMedium},
		{13, 1, schema.DensityFull},
		{6, 4, schema.DensityFull},
		{0, 10, schema.DensityCompact},
		{10, -1, schema.DensityCompact},
	}
	for _, tc := range cases {
		if got := DensityFor(tc.w, tc.h); got != tc.want {
			t.Fatalf("DensityFor(%d,%d) = %s, want %s", tc.w, tc.h, got, tc.want)
		}
	}
}

func TestDensityForCell(t *testing.T) {
	if got := DensityForCell(schema.GridCell{W: 6, H: 4}); got != schema.DensityFull {
		t.Fatalf("expected full, got %s", got)
	}
}
