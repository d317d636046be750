package crystal

import (
	"math"
	"sort"
)

// Reflection is one lattice reflection with its resolution.
type Reflection struct {
	H, K, L int
	// D is the lattice-plane spacing in Å.
	D float64
}

// Generate enumerates every allowed reflection with d-spacing inside
// [dmin, dmax]. Indices run in ascending (h, k, l) order, so the output
// is deterministic for a given cell and range. Systematically absent
// reflections and the direct beam are excluded; symmetry mates are not
// merged (see Unique for that).
func Generate(cell UnitCell, sg *SpaceGroup, dmin, dmax float64) []Reflection {
	if dmin <= 0 || dmax < dmin {
		return nil
	}
	b := basisOf(cell)
	hmax := int(cell.A/dmin) + 2
	kmax := int(cell.B/dmin) + 2
	lmax := int(cell.C/dmin) + 2

	var refs []Reflection
	for h := -hmax; h <= hmax; h++ {
		for k := -kmax; k <= kmax; k++ {
			for l := -lmax; l <= lmax; l++ {
				if !sg.Allowed(h, k, l) {
					continue
				}
				gx, gy, gz := b.g(h, k, l)
				g2 := gx*gx + gy*gy + gz*gz
				// |g| = 1/d, so the shell test is cheapest squared.
				if g2 > 1/(dmin*dmin) || g2 < 1/(dmax*dmax) {
					continue
				}
				refs = append(refs, Reflection{H: h, K: k, L: l, D: 1 / math.Sqrt(g2)})
			}
		}
	}
	return refs
}

// Unique merges the output of Generate down to one canonical
// representative per Laue orbit, sorted by descending d-spacing. Its
// length is the completeness denominator used when judging a merged
// data set.
func Unique(cell UnitCell, sg *SpaceGroup, dmin, dmax float64) []Reflection {
	type trip struct{ h, k, l int }
	all := Generate(cell, sg, dmin, dmax)
	seen := make(map[trip]float64, len(all)/len(sg.ops)+1)
	for _, r := range all {
		h, k, l := sg.Standardize(r.H, r.K, r.L)
		if _, ok := seen[trip{h, k, l}]; !ok {
			seen[trip{h, k, l}] = r.D
		}
	}

	uniq := make([]Reflection, 0, len(seen))
	for t, d := range seen {
		uniq = append(uniq, Reflection{H: t.h, K: t.k, L: t.l, D: d})
	}
	sort.Slice(uniq, func(i, j int) bool {
		if uniq[i].D != uniq[j].D {
			return uniq[i].D > uniq[j].D
		}
		a, b := uniq[i], uniq[j]
		if a.L != b.L {
			return a.L > b.L
		}
		if a.K != b.K {
			return a.K > b.K
		}
		return a.H > b.H
	})
	return uniq
}
