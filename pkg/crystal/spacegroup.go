package crystal

import (
	"fmt"
	"strings"
)

// System enumerates the seven crystal systems.
type System int

const (
	Triclinic System = iota
	Monoclinic
	Orthorhombic
	Tetragonal
	Trigonal
	Hexagonal
	Cubic
)

func (s System) String() string {
	switch s {
	case Triclinic:
		return "triclinic"
	case Monoclinic:
		return "monoclinic"
	case Orthorhombic:
		return "orthorhombic"
	case Tetragonal:
		return "tetragonal"
	case Trigonal:
		return "trigonal"
	case Hexagonal:
		return "hexagonal"
	case Cubic:
		return "cubic"
	}
	return "unknown"
}

// Laue enumerates the eleven Laue classes. The Laue class decides which
// reflections are symmetry mates and how large the orientation search
// region has to be.
type Laue int

const (
	Laue1 Laue = iota // -1
	Laue2m            // 2/m
	LaueMMM           // mmm
	Laue4m            // 4/m
	Laue4mm           // 4/mmm
	Laue3             // -3
	Laue3m            // -3m
	Laue6m            // 6/m
	Laue6mm           // 6/mmm
	LaueM3            // m-3
	LaueM3M           // m-3m
)

func (l Laue) String() string {
	switch l {
	case Laue1:
		return "-1"
	case Laue2m:
		return "2/m"
	case LaueMMM:
		return "mmm"
	case Laue4m:
		return "4/m"
	case Laue4mm:
		return "4/mmm"
	case Laue3:
		return "-3"
	case Laue3m:
		return "-3m"
	case Laue6m:
		return "6/m"
	case Laue6mm:
		return "6/mmm"
	case LaueM3:
		return "m-3"
	case LaueM3M:
		return "m-3m"
	}
	return "?"
}

// Op is a point-group operation acting on Miller indices. Indices
// transform as a row vector: (h',k',l') = (h,k,l)·Op.
type Op [3][3]int

// Apply returns the transformed indices.
func (o Op) Apply(h, k, l int) (int, int, int) {
	return h*o[0][0] + k*o[1][0] + l*o[2][0],
		h*o[0][1] + k*o[1][1] + l*o[2][1],
		h*o[0][2] + k*o[1][2] + l*o[2][2]
}

func mulOp(a, b Op) Op {
	var p Op
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s := 0
			for k := 0; k < 3; k++ {
				s += a[i][k] * b[k][j]
			}
			p[i][j] = s
		}
	}
	return p
}

var (
	opIdentity = Op{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	opInv      = Op{{-1, 0, 0}, {0, -1, 0}, {0, 0, -1}}
	op2x       = Op{{1, 0, 0}, {0, -1, 0}, {0, 0, -1}}
	op2y       = Op{{-1, 0, 0}, {0, 1, 0}, {0, 0, -1}}
	op2z       = Op{{-1, 0, 0}, {0, -1, 0}, {0, 0, 1}}
	op4z       = Op{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}}  // (h,k,l) -> (k,-h,l)
	op3zHex    = Op{{0, -1, 0}, {1, -1, 0}, {0, 0, 1}} // (h,k,l) -> (k,-h-k,l)
	op6zHex    = Op{{1, -1, 0}, {1, 0, 0}, {0, 0, 1}}  // (h,k,l) -> (h+k,-h,l)
	op2xHex    = Op{{1, -1, 0}, {0, -1, 0}, {0, 0, -1}}  // two-fold along a
	op2tHex    = Op{{0, -1, 0}, {-1, 0, 0}, {0, 0, -1}} // two-fold along a-b
	op3d       = Op{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}}    // three-fold along [111]
)

// absenceRule reports whether (h,k,l) is systematically absent.
type absenceRule func(h, k, l int) bool

// SpaceGroup holds the symmetry information derived from a
// Hermann-Mauguin short symbol: lattice centering, crystal system, Laue
// class, the Laue point-group operations, and the systematic-absence
// rules implied by centering, glide planes and screw axes.
type SpaceGroup struct {
	Symbol    string
	Centering byte
	System    System
	Laue      Laue

	ops       []Op
	absences  []absenceRule
	tert3Fold bool // trigonal 312-type setting, two-folds along a-b
}

// field is one rotational position of a Hermann-Mauguin symbol, e.g.
// "41/a" parses to rot "41" with plane 'a'.
type hmField struct {
	rot   string
	plane byte
}

func (f hmField) trivial() bool {
	return (f.rot == "" || f.rot == "1") && f.plane == 0
}

// ParseSpaceGroup interprets a Hermann-Mauguin short symbol such as
// "P21/c", "Fm-3c" or "P63/mmc". Spaces inside the symbol are optional.
// Monoclinic groups are taken in the b-unique setting and rhombohedral
// groups in the hexagonal (obverse) setting.
func ParseSpaceGroup(symbol string) (*SpaceGroup, error) {
	s := strings.TrimSpace(symbol)
	if s == "" {
		return nil, fmt.Errorf("crystal: empty space-group symbol")
	}

	cent := s[0]
	switch cent {
	case 'P', 'A', 'B', 'C', 'I', 'F', 'R':
	default:
		return nil, fmt.Errorf("crystal: space group %q: unknown centering %q", symbol, string(cent))
	}

	fields, err := tokenizeHM(s[1:])
	if err != nil {
		return nil, fmt.Errorf("crystal: space group %q: %v", symbol, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("crystal: space group %q has no symmetry fields", symbol)
	}

	sys, err := classifyHM(fields)
	if err != nil {
		return nil, fmt.Errorf("crystal: space group %q: %v", symbol, err)
	}
	if cent == 'R' && sys != Trigonal {
		return nil, fmt.Errorf("crystal: space group %q: R centering requires a trigonal symbol", symbol)
	}

	sg := &SpaceGroup{
		Symbol:    symbol,
		Centering: cent,
		System:    sys,
		Laue:      laueOf(sys, fields),
	}
	sg.ops = laueOps(sg.Laue)
	if sg.Laue == Laue3m && !trigonal2FoldAlongA(fields) {
		// 312-type setting: the two-folds run along the a-b star.
		sg.tert3Fold = true
		sg.ops = closeOps([]Op{opInv, op3zHex, op2tHex})
	}
	sg.absences = buildAbsences(cent, sys, fields)
	return sg, nil
}

// tokenizeHM splits the part after the centering letter into rotational
// fields. Screw subscripts (21, 63, ...) and rotoinversions (-3, -4)
// fold into a single rotation token; "rot/plane" pairs fold into one
// field.
func tokenizeHM(s string) ([]hmField, error) {
	var fields []hmField
	i := 0
	for i < len(s) {
		ch := s[i]
		switch {
		case ch == ' ':
			i++
		case ch == '-':
			if i+1 >= len(s) || !isAxisDigit(s[i+1]) {
				return nil, fmt.Errorf("dangling %q", "-")
			}
			fields = append(fields, hmField{rot: s[i : i+2]})
			i += 2
		case isAxisDigit(ch):
			rot := string(ch)
			if i+1 < len(s) && validScrew(ch, s[i+1]) {
				rot = s[i : i+2]
				i++
			}
			fields = append(fields, hmField{rot: rot})
			i++
		case ch == '/':
			if len(fields) == 0 || fields[len(fields)-1].plane != 0 || i+1 >= len(s) || !isPlaneLetter(s[i+1]) {
				return nil, fmt.Errorf("misplaced %q", "/")
			}
			fields[len(fields)-1].plane = s[i+1]
			i += 2
		case isPlaneLetter(ch):
			fields = append(fields, hmField{plane: ch})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", string(ch))
		}
	}
	return fields, nil
}

func isAxisDigit(b byte) bool {
	return b == '1' || b == '2' || b == '3' || b == '4' || b == '6'
}

func isPlaneLetter(b byte) bool {
	switch b {
	case 'm', 'a', 'b', 'c', 'n', 'd':
		return true
	}
	return false
}

// validScrew reports whether digit pair (axis, sub) is a screw axis.
func validScrew(axis, sub byte) bool {
	switch axis {
	case '2':
		return sub == '1'
	case '3':
		return sub == '1' || sub == '2'
	case '4':
		return sub >= '1' && sub <= '3'
	case '6':
		return sub >= '1' && sub <= '5'
	}
	return false
}

// classifyHM decides the crystal system from the parsed fields.
func classifyHM(fields []hmField) (System, error) {
	if len(fields) >= 2 && (fields[1].rot == "3" || fields[1].rot == "-3") {
		return Cubic, nil
	}
	r0 := fields[0].rot
	switch {
	case strings.HasPrefix(r0, "6") || r0 == "-6":
		return Hexagonal, nil
	case strings.HasPrefix(r0, "3") || r0 == "-3":
		return Trigonal, nil
	case strings.HasPrefix(r0, "4") || r0 == "-4":
		return Tetragonal, nil
	case len(fields) >= 3:
		return Orthorhombic, nil
	case r0 == "1" || r0 == "-1":
		return Triclinic, nil
	case len(fields) == 1:
		return Monoclinic, nil
	}
	return Triclinic, fmt.Errorf("cannot classify fields")
}

// laueOf maps system plus field pattern to one of the eleven Laue
// classes. Secondary or tertiary fields raise the holohedral classes.
func laueOf(sys System, fields []hmField) Laue {
	extra := false
	for _, f := range fields[1:] {
		if !f.trivial() {
			extra = true
			break
		}
	}
	switch sys {
	case Triclinic:
		return Laue1
	case Monoclinic:
		return Laue2m
	case Orthorhombic:
		return LaueMMM
	case Tetragonal:
		if extra {
			return Laue4mm
		}
		return Laue4m
	case Trigonal:
		if extra {
			return Laue3m
		}
		return Laue3
	case Hexagonal:
		if extra {
			return Laue6mm
		}
		return Laue6m
	case Cubic:
		if len(fields) >= 3 && !fields[2].trivial() {
			return LaueM3M
		}
		return LaueM3
	}
	return Laue1
}

// laueOps returns the full operation set of a Laue class, generated by
// closing the class generators under multiplication. Every set contains
// the inversion, so Friedel mates are always covered.
func laueOps(l Laue) []Op {
	var gens []Op
	switch l {
	case Laue1:
		gens = []Op{opInv}
	case Laue2m:
		gens = []Op{opInv, op2y}
	case LaueMMM:
		gens = []Op{opInv, op2z, op2x}
	case Laue4m:
		gens = []Op{opInv, op4z}
	case Laue4mm:
		gens = []Op{opInv, op4z, op2x}
	case Laue3:
		gens = []Op{opInv, op3zHex}
	case Laue3m:
		gens = []Op{opInv, op3zHex, op2xHex}
	case Laue6m:
		gens = []Op{opInv, op6zHex}
	case Laue6mm:
		gens = []Op{opInv, op6zHex, op2xHex}
	case LaueM3:
		gens = []Op{opInv, op2z, op3d}
	case LaueM3M:
		gens = []Op{opInv, op4z, op3d}
	}
	return closeOps(gens)
}

// closeOps grows the generator set to the full group. Laue groups have
// at most 48 elements, so the fixpoint loop is cheap.
func closeOps(gens []Op) []Op {
	ops := []Op{opIdentity}
	seen := map[Op]bool{opIdentity: true}
	for {
		added := false
		for _, a := range ops {
			for _, g := range gens {
				p := mulOp(a, g)
				if !seen[p] {
					seen[p] = true
					ops = append(ops, p)
					added = true
				}
			}
		}
		if !added {
			return ops
		}
	}
}

// Ops returns the Laue point-group operations. The slice is shared;
// callers must not modify it.
func (sg *SpaceGroup) Ops() []Op {
	return sg.ops
}

// trigonal2FoldAlongA reports whether the trigonal two-fold axes run
// along the hexagonal a-axes (the 321/-3m1 arrangement) rather than
// along the a-b star (312/-31m). Only relevant for Laue3m.
func trigonal2FoldAlongA(fields []hmField) bool {
	// Field 2 holds the <100> direction, field 3 the <1-10> direction.
	return len(fields) >= 2 && !fields[1].trivial()
}

// Absent reports whether (h,k,l) is extinguished by the lattice
// centering, glide planes or screw axes of the group.
func (sg *SpaceGroup) Absent(h, k, l int) bool {
	for _, rule := range sg.absences {
		if rule(h, k, l) {
			return true
		}
	}
	return false
}

// Allowed reports whether (h,k,l) is a real reflection: not the direct
// beam and not systematically absent.
func (sg *SpaceGroup) Allowed(h, k, l int) bool {
	if h == 0 && k == 0 && l == 0 {
		return false
	}
	return !sg.Absent(h, k, l)
}

// Standardize maps (h,k,l) to the canonical representative of its
// symmetry orbit: the image that is lexicographically largest with l
// weighted most and h least. All Laue mates of a reflection, Friedel
// pairs included, standardize to the same triple.
func (sg *SpaceGroup) Standardize(h, k, l int) (int, int, int) {
	bh, bk, bl := h, k, l
	first := true
	for _, op := range sg.ops {
		th, tk, tl := op.Apply(h, k, l)
		if first || tl > bl || (tl == bl && (tk > bk || (tk == bk && th > bh))) {
			bh, bk, bl = th, tk, tl
			first = false
		}
	}
	return bh, bk, bl
}

// Multiplicity returns the size of the Laue orbit of (h,k,l).
func (sg *SpaceGroup) Multiplicity(h, k, l int) int {
	type trip struct{ h, k, l int }
	seen := make(map[trip]bool, len(sg.ops))
	for _, op := range sg.ops {
		th, tk, tl := op.Apply(h, k, l)
		seen[trip{th, tk, tl}] = true
	}
	return len(seen)
}
