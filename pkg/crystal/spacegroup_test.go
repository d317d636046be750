package crystal

import (
	"testing"
)

// TestParseSpaceGroup verifies symbol parsing across all seven crystal
// systems: centering letter, system, Laue class and the size of the
// Laue operation set.
func TestParseSpaceGroup(t *testing.T) {
	tests := []struct {
		symbol    string
		centering byte
		system    System
		laue      Laue
		nops      int
	}{
		{"P1", 'P', Triclinic, Laue1, 2},
		{"P-1", 'P', Triclinic, Laue1, 2},
		{"P2", 'P', Monoclinic, Laue2m, 4},
		{"P21/c", 'P', Monoclinic, Laue2m, 4},
		{"C2/c", 'C', Monoclinic, Laue2m, 4},
		{"C2/m", 'C', Monoclinic, Laue2m, 4},
		{"Pnma", 'P', Orthorhombic, LaueMMM, 8},
		{"Fddd", 'F', Orthorhombic, LaueMMM, 8},
		{"Cmcm", 'C', Orthorhombic, LaueMMM, 8},
		{"P41", 'P', Tetragonal, Laue4m, 8},
		{"I41/a", 'I', Tetragonal, Laue4m, 8},
		{"P43212", 'P', Tetragonal, Laue4mm, 16},
		{"P-421c", 'P', Tetragonal, Laue4mm, 16},
		{"P4/mmm", 'P', Tetragonal, Laue4mm, 16},
		{"P31", 'P', Trigonal, Laue3, 6},
		{"R-3", 'R', Trigonal, Laue3, 6},
		{"P321", 'P', Trigonal, Laue3m, 12},
		{"P312", 'P', Trigonal, Laue3m, 12},
		{"P-31c", 'P', Trigonal, Laue3m, 12},
		{"R32", 'R', Trigonal, Laue3m, 12},
		{"R-3c", 'R', Trigonal, Laue3m, 12},
		{"P63", 'P', Hexagonal, Laue6m, 12},
		{"P63/mmc", 'P', Hexagonal, Laue6mm, 24},
		{"P6122", 'P', Hexagonal, Laue6mm, 24},
		{"P-6m2", 'P', Hexagonal, Laue6mm, 24},
		{"P23", 'P', Cubic, LaueM3, 24},
		{"Pa-3", 'P', Cubic, LaueM3, 24},
		{"I213", 'I', Cubic, LaueM3, 24},
		{"Fm-3m", 'F', Cubic, LaueM3M, 48},
		{"Fm-3c", 'F', Cubic, LaueM3M, 48},
		{"Fd-3m", 'F', Cubic, LaueM3M, 48},
		{"Ia-3d", 'I', Cubic, LaueM3M, 48},
		{"F-43c", 'F', Cubic, LaueM3M, 48},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			sg, err := ParseSpaceGroup(tt.symbol)
			if err != nil {
				t.Fatalf("Failed to parse %q: %v", tt.symbol, err)
			}
			if sg.Centering != tt.centering {
				t.Errorf("Expected centering %q, got %q", string(tt.centering), string(sg.Centering))
			}
			if sg.System != tt.system {
				t.Errorf("Expected system %v, got %v", tt.system, sg.System)
			}
			if sg.Laue != tt.laue {
				t.Errorf("Expected Laue class %v, got %v", tt.laue, sg.Laue)
			}
			if len(sg.Ops()) != tt.nops {
				t.Errorf("Expected %d Laue operations, got %d", tt.nops, len(sg.Ops()))
			}
		})
	}
}

// TestParseSpaceGroupSpaces verifies that spaces inside a symbol are
// accepted, as in "P 21/c".
func TestParseSpaceGroupSpaces(t *testing.T) {
	spaced, err := ParseSpaceGroup("P 21/c")
	if err != nil {
		t.Fatalf("Failed to parse spaced symbol: %v", err)
	}
	plain, err := ParseSpaceGroup("P21/c")
	if err != nil {
		t.Fatalf("Failed to parse plain symbol: %v", err)
	}
	if spaced.System != plain.System || spaced.Laue != plain.Laue {
		t.Errorf("Expected spaced and plain symbols to agree, got %v/%v and %v/%v",
			spaced.System, spaced.Laue, plain.System, plain.Laue)
	}
}

// TestParseSpaceGroupErrors verifies rejection of malformed symbols.
func TestParseSpaceGroupErrors(t *testing.T) {
	bad := []string{
		"",       // empty
		"   ",    // blank
		"X4/mmm", // unknown centering letter
		"P",      // no symmetry fields
		"P-m",    // dangling minus
		"P-",     // dangling minus at end
		"P4/q",   // slash without a plane letter
		"P4/",    // slash at end
		"Pq",     // unknown character
		"P22",    // unclassifiable field pattern
		"P5",     // invalid axis order
		"Rm-3m",  // R centering on a cubic symbol
	}
	for _, symbol := range bad {
		if _, err := ParseSpaceGroup(symbol); err == nil {
			t.Errorf("Expected an error for symbol %q, got nil", symbol)
		}
	}
}

// TestOpsClosed verifies that each Laue operation set is a group:
// closed under multiplication and containing identity and inversion.
func TestOpsClosed(t *testing.T) {
	symbols := []string{"P-1", "P21/c", "Pnma", "I41/a", "P4/mmm", "R-3", "P321", "P312", "P63/mmc", "Pa-3", "Fm-3c"}
	for _, symbol := range symbols {
		sg, err := ParseSpaceGroup(symbol)
		if err != nil {
			t.Fatalf("Failed to parse %q: %v", symbol, err)
		}
		ops := sg.Ops()
		seen := make(map[Op]bool, len(ops))
		for _, op := range ops {
			seen[op] = true
		}
		if !seen[opIdentity] {
			t.Errorf("%s: operation set is missing the identity", symbol)
		}
		if !seen[opInv] {
			t.Errorf("%s: operation set is missing the inversion", symbol)
		}
		for _, a := range ops {
			for _, b := range ops {
				if !seen[mulOp(a, b)] {
					t.Errorf("%s: operation set is not closed under multiplication", symbol)
				}
			}
		}
	}
}

// TestStandardize verifies canonical representatives against hand-worked
// orbits, and the orbit invariants every group must satisfy.
func TestStandardize(t *testing.T) {
	tests := []struct {
		symbol string
		in     [3]int
		want   [3]int
	}{
		// 2/m orbit of (1,-2,-3) is {(1,-2,-3), (-1,2,3), (-1,-2,3), (1,2,-3)}.
		{"P21/c", [3]int{1, -2, -3}, [3]int{-1, 2, 3}},
		// m-3m permutes and flips freely, so the representative sorts the
		// magnitudes ascending with positive signs.
		{"Fm-3c", [3]int{-3, 1, -2}, [3]int{1, 2, 3}},
		{"Fm-3c", [3]int{2, 2, 0}, [3]int{0, 2, 2}},
		// The two -3m settings carry different two-fold axes and pick
		// different representatives for the same reflection.
		{"P321", [3]int{2, 1, 1}, [3]int{-2, 3, 1}},
		{"P312", [3]int{2, 1, 1}, [3]int{1, 2, 1}},
		{"P-1", [3]int{-1, -2, -3}, [3]int{1, 2, 3}},
	}

	for _, tt := range tests {
		sg, err := ParseSpaceGroup(tt.symbol)
		if err != nil {
			t.Fatalf("Failed to parse %q: %v", tt.symbol, err)
		}
		h, k, l := sg.Standardize(tt.in[0], tt.in[1], tt.in[2])
		if h != tt.want[0] || k != tt.want[1] || l != tt.want[2] {
			t.Errorf("%s Standardize(%d,%d,%d): expected (%d,%d,%d), got (%d,%d,%d)",
				tt.symbol, tt.in[0], tt.in[1], tt.in[2],
				tt.want[0], tt.want[1], tt.want[2], h, k, l)
		}
	}

	// Every Laue mate of a reflection, the Friedel mate included, must
	// standardize to the same triple, and a representative must map to
	// itself.
	symbols := []string{"P-1", "C2/c", "Pnma", "I41/a", "P321", "P312", "P63/mmc", "Pa-3", "Fm-3c"}
	probes := [][3]int{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 2, 3}, {-2, 0, 5}, {3, -1, 2}}
	for _, symbol := range symbols {
		sg, err := ParseSpaceGroup(symbol)
		if err != nil {
			t.Fatalf("Failed to parse %q: %v", symbol, err)
		}
		for _, p := range probes {
			rh, rk, rl := sg.Standardize(p[0], p[1], p[2])

			sh, sk, sl := sg.Standardize(rh, rk, rl)
			if sh != rh || sk != rk || sl != rl {
				t.Errorf("%s: representative (%d,%d,%d) does not standardize to itself", symbol, rh, rk, rl)
			}

			for _, op := range sg.Ops() {
				th, tk, tl := op.Apply(p[0], p[1], p[2])
				mh, mk, ml := sg.Standardize(th, tk, tl)
				if mh != rh || mk != rk || ml != rl {
					t.Errorf("%s: mate (%d,%d,%d) of (%d,%d,%d) standardized to (%d,%d,%d), expected (%d,%d,%d)",
						symbol, th, tk, tl, p[0], p[1], p[2], mh, mk, ml, rh, rk, rl)
				}
			}

			fh, fk, fl := sg.Standardize(-p[0], -p[1], -p[2])
			if fh != rh || fk != rk || fl != rl {
				t.Errorf("%s: Friedel mate of (%d,%d,%d) standardized to (%d,%d,%d), expected (%d,%d,%d)",
					symbol, p[0], p[1], p[2], fh, fk, fl, rh, rk, rl)
			}
		}
	}
}

// TestMultiplicity verifies Laue orbit sizes against the tabulated
// multiplicities of the common reflection families.
func TestMultiplicity(t *testing.T) {
	tests := []struct {
		symbol string
		hkl    [3]int
		want   int
	}{
		{"P-1", [3]int{1, 2, 3}, 2},
		{"P21/c", [3]int{0, 1, 0}, 2},
		{"P21/c", [3]int{1, 0, 0}, 2},
		{"P21/c", [3]int{1, 2, 3}, 4},
		{"Pnma", [3]int{1, 2, 3}, 8},
		{"Pnma", [3]int{1, 0, 0}, 2},
		{"P63/mmc", [3]int{0, 0, 1}, 2},
		{"P63/mmc", [3]int{1, 0, 0}, 6},
		{"P63/mmc", [3]int{1, 0, 1}, 12},
		{"Fm-3m", [3]int{1, 0, 0}, 6},
		{"Fm-3m", [3]int{1, 1, 0}, 12},
		{"Fm-3m", [3]int{1, 1, 1}, 8},
		{"Fm-3m", [3]int{1, 2, 0}, 24},
		{"Fm-3m", [3]int{1, 2, 3}, 48},
		// m-3 lacks the diagonal two-folds, so the general form halves
		// and hk0 keeps 12.
		{"Pa-3", [3]int{1, 2, 0}, 12},
		{"Pa-3", [3]int{1, 2, 3}, 24},
	}

	for _, tt := range tests {
		sg, err := ParseSpaceGroup(tt.symbol)
		if err != nil {
			t.Fatalf("Failed to parse %q: %v", tt.symbol, err)
		}
		got := sg.Multiplicity(tt.hkl[0], tt.hkl[1], tt.hkl[2])
		if got != tt.want {
			t.Errorf("%s multiplicity of (%d,%d,%d): expected %d, got %d",
				tt.symbol, tt.hkl[0], tt.hkl[1], tt.hkl[2], tt.want, got)
		}
	}
}

// TestSystemString verifies the display names of the enums used in logs
// and error messages.
func TestSystemString(t *testing.T) {
	if got := Cubic.String(); got != "cubic" {
		t.Errorf("Expected \"cubic\", got %q", got)
	}
	if got := Triclinic.String(); got != "triclinic" {
		t.Errorf("Expected \"triclinic\", got %q", got)
	}
	if got := LaueM3M.String(); got == "" {
		t.Error("Expected a non-empty Laue class name, got an empty string")
	}
}
