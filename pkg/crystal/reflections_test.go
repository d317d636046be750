package crystal

import (
	"math"
	"testing"
)

// TestGenerateSmallCell verifies the reflection count of a hand-countable
// case: a 5 Å cube without absences holds the shells h²+k²+l² = 1..6
// between 2 and 10 Å, which is 6+12+8+6+24+24 = 80 reflections.
func TestGenerateSmallCell(t *testing.T) {
	cell := UnitCell{Name: "p1", A: 5, B: 5, C: 5, Alpha: 90, Beta: 90, Gamma: 90}
	sg, err := ParseSpaceGroup("P1")
	if err != nil {
		t.Fatalf("Failed to parse space group: %v", err)
	}

	refs := Generate(cell, sg, 2, 10)
	if len(refs) != 80 {
		t.Errorf("Expected 80 reflections, got %d", len(refs))
	}

	for _, r := range refs {
		if r.H == 0 && r.K == 0 && r.L == 0 {
			t.Error("Direct beam must not appear in the reflection list")
		}
		if r.D < 2-1e-9 || r.D > 10+1e-9 {
			t.Errorf("Reflection (%d,%d,%d) has d = %v outside [2, 10]", r.H, r.K, r.L, r.D)
		}
		s := r.H*r.H + r.K*r.K + r.L*r.L
		want := 5 / math.Sqrt(float64(s))
		if math.Abs(r.D-want) > 1e-9 {
			t.Errorf("Reflection (%d,%d,%d): expected d = %v, got %v", r.H, r.K, r.L, want, r.D)
		}
	}

	// Friedel merging halves the list.
	uniq := Unique(cell, sg, 2, 10)
	if len(uniq) != 40 {
		t.Errorf("Expected 40 unique reflections, got %d", len(uniq))
	}
}

// TestGenerateBadRange verifies that degenerate resolution ranges yield
// no reflections instead of looping.
func TestGenerateBadRange(t *testing.T) {
	cell := UnitCell{Name: "p1", A: 5, B: 5, C: 5, Alpha: 90, Beta: 90, Gamma: 90}
	sg, err := ParseSpaceGroup("P1")
	if err != nil {
		t.Fatalf("Failed to parse space group: %v", err)
	}
	if refs := Generate(cell, sg, 0, 10); refs != nil {
		t.Errorf("Expected nil for dmin = 0, got %d reflections", len(refs))
	}
	if refs := Generate(cell, sg, 5, 2); refs != nil {
		t.Errorf("Expected nil for dmax < dmin, got %d reflections", len(refs))
	}
}

// TestGenerateReferenceCell pins the reflection counts of the reference
// phase, a 24.61 Å Fm-3c cube between 1 and 10 Å. The shell boundaries
// sit far from any lattice ring, so the counts are stable.
func TestGenerateReferenceCell(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping full-shell enumeration in short mode")
	}
	cell := UnitCell{Name: "ref", A: 24.61, B: 24.61, C: 24.61, Alpha: 90, Beta: 90, Gamma: 90}
	sg, err := ParseSpaceGroup("Fm-3c")
	if err != nil {
		t.Fatalf("Failed to parse space group: %v", err)
	}

	refs := Generate(cell, sg, 1, 10)
	if len(refs) != 13658 {
		t.Errorf("Expected 13658 reflections, got %d", len(refs))
	}

	seen := make(map[[3]int]bool, len(refs))
	for _, r := range refs {
		key := [3]int{r.H, r.K, r.L}
		if seen[key] {
			t.Fatalf("Duplicate reflection (%d,%d,%d)", r.H, r.K, r.L)
		}
		seen[key] = true
		if !sg.Allowed(r.H, r.K, r.L) {
			t.Fatalf("Systematically absent reflection (%d,%d,%d) generated", r.H, r.K, r.L)
		}
	}

	uniq := Unique(cell, sg, 1, 10)
	if len(uniq) != 364 {
		t.Errorf("Expected 364 unique reflections, got %d", len(uniq))
	}

	// The lowest-angle family is {220}: (111) is extinct in Fm-3c and
	// (200) falls outside 10 Å.
	first := uniq[0]
	if first.H != 0 || first.K != 2 || first.L != 2 {
		t.Errorf("Expected first unique reflection (0,2,2), got (%d,%d,%d)", first.H, first.K, first.L)
	}
	if want := 24.61 / math.Sqrt(8); math.Abs(first.D-want) > 1e-9 {
		t.Errorf("Expected first d-spacing %v, got %v", want, first.D)
	}

	// The orbits partition the full list, so the multiplicities of the
	// representatives must add up to the generated count.
	total := 0
	for _, u := range uniq {
		total += sg.Multiplicity(u.H, u.K, u.L)
	}
	if total != len(refs) {
		t.Errorf("Expected multiplicities to sum to %d, got %d", len(refs), total)
	}
}

// TestUniqueProperties verifies the structural invariants of the unique
// list: canonical self-mapping representatives, descending resolution
// order, and closure over the generated reflections.
func TestUniqueProperties(t *testing.T) {
	cell := UnitCell{Name: "ref", A: 24.61, B: 24.61, C: 24.61, Alpha: 90, Beta: 90, Gamma: 90}
	sg, err := ParseSpaceGroup("Fm-3c")
	if err != nil {
		t.Fatalf("Failed to parse space group: %v", err)
	}

	// A narrower shell keeps the loop light.
	refs := Generate(cell, sg, 2, 10)
	uniq := Unique(cell, sg, 2, 10)
	if len(uniq) == 0 {
		t.Fatal("Expected a non-empty unique list")
	}

	reps := make(map[[3]int]bool, len(uniq))
	for i, u := range uniq {
		h, k, l := sg.Standardize(u.H, u.K, u.L)
		if h != u.H || k != u.K || l != u.L {
			t.Errorf("Representative (%d,%d,%d) is not canonical", u.H, u.K, u.L)
		}
		key := [3]int{u.H, u.K, u.L}
		if reps[key] {
			t.Errorf("Duplicate representative (%d,%d,%d)", u.H, u.K, u.L)
		}
		reps[key] = true
		if i > 0 && uniq[i].D > uniq[i-1].D {
			t.Errorf("Unique list not sorted by descending d at index %d", i)
		}
	}

	for _, r := range refs {
		h, k, l := sg.Standardize(r.H, r.K, r.L)
		if !reps[[3]int{h, k, l}] {
			t.Errorf("Reflection (%d,%d,%d) standardizes to (%d,%d,%d), which is missing from the unique list",
				r.H, r.K, r.L, h, k, l)
		}
	}
}

// BenchmarkGenerate measures the full-shell enumeration of the
// reference phase.
func BenchmarkGenerate(b *testing.B) {
	cell := UnitCell{Name: "ref", A: 24.61, B: 24.61, C: 24.61, Alpha: 90, Beta: 90, Gamma: 90}
	sg, err := ParseSpaceGroup("Fm-3c")
	if err != nil {
		b.Fatalf("Failed to parse space group: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Generate(cell, sg, 1, 10)
	}
}
