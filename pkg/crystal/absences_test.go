package crystal

import (
	"testing"
)

// TestSystematicAbsences verifies the extinction rules assembled from
// centering, glide planes and screw axes against reference conditions
// for a spread of space groups.
func TestSystematicAbsences(t *testing.T) {
	type refl struct {
		hkl    [3]int
		absent bool
	}
	tests := []struct {
		symbol string
		refls  []refl
	}{
		{
			// c-glide on h0l, screw 21 on 0k0.
			symbol: "P21/c",
			refls: []refl{
				{[3]int{0, 3, 0}, true},
				{[3]int{0, 4, 0}, false},
				{[3]int{1, 0, 1}, true},
				{[3]int{1, 0, 2}, false},
				{[3]int{2, 0, -3}, true},
				{[3]int{3, 1, 5}, false},
			},
		},
		{
			// C centering plus the c-glide zone.
			symbol: "C2/c",
			refls: []refl{
				{[3]int{1, 2, 3}, true},
				{[3]int{2, 2, 3}, false},
				{[3]int{2, 0, 3}, true},
				{[3]int{2, 0, 4}, false},
				{[3]int{0, 3, 0}, true},
			},
		},
		{
			// The serial conditions of the unwritten screw axes follow
			// from the glide zones: 0k0 with k odd sits in the 0kl zone.
			symbol: "Pnma",
			refls: []refl{
				{[3]int{0, 2, 1}, true},
				{[3]int{0, 2, 2}, false},
				{[3]int{1, 2, 0}, true},
				{[3]int{2, 1, 0}, false},
				{[3]int{0, 3, 0}, true},
				{[3]int{0, 0, 3}, true},
				{[3]int{3, 0, 0}, true},
				{[3]int{1, 1, 1}, false},
			},
		},
		{
			symbol: "I41/a",
			refls: []refl{
				{[3]int{1, 0, 0}, true},  // I centering
				{[3]int{0, 0, 2}, true},  // 41 screw
				{[3]int{0, 0, 4}, false},
				{[3]int{3, 1, 0}, true},  // a-glide on hk0
				{[3]int{2, 4, 0}, false},
				{[3]int{2, 3, 0}, true},  // I centering
				{[3]int{2, 2, 0}, false},
			},
		},
		{
			symbol: "P41",
			refls: []refl{
				{[3]int{0, 0, 1}, true},
				{[3]int{0, 0, 2}, true},
				{[3]int{0, 0, 3}, true},
				{[3]int{0, 0, 4}, false},
				{[3]int{1, 1, 1}, false},
			},
		},
		{
			// 63 screw on 000l, tertiary c-glide on the hhl zones.
			symbol: "P63/mmc",
			refls: []refl{
				{[3]int{0, 0, 1}, true},
				{[3]int{0, 0, 2}, false},
				{[3]int{1, 1, 1}, true},
				{[3]int{1, 1, 2}, false},
				{[3]int{1, -2, 1}, true},
				{[3]int{-2, 1, 1}, true},
				{[3]int{1, 0, 1}, false},
				{[3]int{1, 0, 0}, false},
			},
		},
		{
			// Cyclic a/b/c glides; h00 with h odd follows from the hk0 zone.
			symbol: "Pa-3",
			refls: []refl{
				{[3]int{0, 1, 2}, true},
				{[3]int{0, 2, 1}, false},
				{[3]int{1, 0, 3}, true},
				{[3]int{3, 2, 0}, true},
				{[3]int{2, 3, 0}, false},
				{[3]int{1, 0, 0}, true},
				{[3]int{2, 0, 0}, false},
				{[3]int{1, 1, 1}, false},
			},
		},
		{
			// Diamond glide: 0kl needs k+l = 4n, h00 needs h = 4n.
			symbol: "Fd-3m",
			refls: []refl{
				{[3]int{0, 2, 2}, false},
				{[3]int{0, 4, 2}, true},
				{[3]int{2, 0, 0}, true},
				{[3]int{4, 0, 0}, false},
				{[3]int{1, 1, 1}, false},
				{[3]int{2, 2, 2}, false},
				{[3]int{2, 2, 3}, true}, // F centering
			},
		},
		{
			// I centering, cyclic a-glides and the d-glide hhl condition
			// 2h+l = 4n, which also forces h00 to h = 4n.
			symbol: "Ia-3d",
			refls: []refl{
				{[3]int{4, 4, 2}, true},
				{[3]int{4, 4, 4}, false},
				{[3]int{1, 1, 2}, false},
				{[3]int{1, 1, 4}, true},
				{[3]int{2, 0, 0}, true},
				{[3]int{4, 0, 0}, false},
				{[3]int{1, 2, 3}, false},
			},
		},
		{
			// F centering plus the tertiary c-glide on all six <110>
			// zones; (111) is the hallmark absence.
			symbol: "Fm-3c",
			refls: []refl{
				{[3]int{1, 1, 1}, true},
				{[3]int{2, 2, 2}, false},
				{[3]int{0, 0, 2}, false},
				{[3]int{0, 0, 1}, true},
				{[3]int{3, 3, 5}, true},
				{[3]int{5, 3, 3}, true},
				{[3]int{3, 5, 3}, true},
				{[3]int{1, 3, 5}, false},
				{[3]int{1, -1, 3}, true},
				{[3]int{2, 4, 5}, true}, // F centering
			},
		},
		{
			// Obverse rhombohedral lattice rule plus the c-glide zones.
			symbol: "R-3c",
			refls: []refl{
				{[3]int{0, 0, 3}, true},
				{[3]int{0, 0, 6}, false},
				{[3]int{0, 0, 2}, true}, // lattice rule
				{[3]int{1, 0, 1}, true},
				{[3]int{1, 0, 4}, false},
				{[3]int{1, -1, 5}, true},
				{[3]int{1, -1, 2}, false},
			},
		},
		{
			// Without the glide the 000l rule relaxes to the lattice 3n.
			symbol: "R-3",
			refls: []refl{
				{[3]int{0, 0, 3}, false},
				{[3]int{0, 0, 2}, true},
				{[3]int{1, 0, 1}, false},
			},
		},
		{
			symbol: "P6122",
			refls: []refl{
				{[3]int{0, 0, 1}, true},
				{[3]int{0, 0, 5}, true},
				{[3]int{0, 0, 6}, false},
				{[3]int{1, 0, 0}, false},
			},
		},
		{
			// No translational elements at all.
			symbol: "P4/mmm",
			refls: []refl{
				{[3]int{0, 0, 1}, false},
				{[3]int{1, 0, 0}, false},
				{[3]int{1, 1, 1}, false},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			sg, err := ParseSpaceGroup(tt.symbol)
			if err != nil {
				t.Fatalf("Failed to parse %q: %v", tt.symbol, err)
			}
			for _, r := range tt.refls {
				h, k, l := r.hkl[0], r.hkl[1], r.hkl[2]
				if got := sg.Absent(h, k, l); got != r.absent {
					t.Errorf("%s (%d,%d,%d): expected absent=%v, got %v", tt.symbol, h, k, l, r.absent, got)
				}
			}
		})
	}
}

// TestAllowed verifies that the direct beam is never a reflection and
// that Allowed is the complement of Absent otherwise.
func TestAllowed(t *testing.T) {
	sg, err := ParseSpaceGroup("Fm-3c")
	if err != nil {
		t.Fatalf("Failed to parse space group: %v", err)
	}
	if sg.Allowed(0, 0, 0) {
		t.Error("Expected (0,0,0) to be disallowed")
	}
	if sg.Allowed(1, 1, 1) {
		t.Error("Expected (1,1,1) to be disallowed in Fm-3c")
	}
	if !sg.Allowed(0, 2, 2) {
		t.Error("Expected (0,2,2) to be allowed in Fm-3c")
	}
}

// TestAbsencesRespectSymmetry verifies that extinction rules agree on
// every Laue mate of a reflection: a condition that held only on part
// of an orbit would corrupt the unique reflection list.
func TestAbsencesRespectSymmetry(t *testing.T) {
	symbols := []string{"P21/c", "C2/c", "Pnma", "I41/a", "P63/mmc", "R-3c", "Pa-3", "Fd-3m", "Fm-3c", "Ia-3d"}
	for _, symbol := range symbols {
		sg, err := ParseSpaceGroup(symbol)
		if err != nil {
			t.Fatalf("Failed to parse %q: %v", symbol, err)
		}
		for h := -4; h <= 4; h++ {
			for k := -4; k <= 4; k++ {
				for l := -4; l <= 4; l++ {
					if h == 0 && k == 0 && l == 0 {
						continue
					}
					want := sg.Absent(h, k, l)
					for _, op := range sg.Ops() {
						th, tk, tl := op.Apply(h, k, l)
						if got := sg.Absent(th, tk, tl); got != want {
							t.Fatalf("%s: (%d,%d,%d) absent=%v but mate (%d,%d,%d) absent=%v",
								symbol, h, k, l, want, th, tk, tl, got)
						}
					}
				}
			}
		}
	}
}
