// Package crystal provides the crystallographic primitives for serial
// electron diffraction: unit cells, space-group symmetry, and the
// generation of allowed reflections inside a resolution shell.
package crystal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// UnitCell describes a crystal lattice by its six lattice parameters and
// a space-group symbol. Lengths are in Ångström, angles in degrees.
// A UnitCell is a plain immutable value; derived quantities are computed
// on demand.
type UnitCell struct {
	// Name identifies the phase, mainly for multi-phase indexing.
	Name string

	// A, B, C are the lattice lengths in Ångström.
	A, B, C float64

	// Alpha, Beta, Gamma are the lattice angles in degrees.
	Alpha, Beta, Gamma float64

	// SpaceGroup is the Hermann-Mauguin short symbol, e.g. "Fm-3c".
	SpaceGroup string
}

// Validate checks that the lattice parameters describe a real cell.
// It does not parse the space-group symbol; see ParseSpaceGroup and
// CheckConsistent for that side.
func (c UnitCell) Validate() error {
	if c.A <= 0 || c.B <= 0 || c.C <= 0 {
		return fmt.Errorf("crystal: cell %q has a non-positive length (a=%g b=%g c=%g)", c.Name, c.A, c.B, c.C)
	}
	for _, ang := range []float64{c.Alpha, c.Beta, c.Gamma} {
		if ang <= 0 || ang >= 180 {
			return fmt.Errorf("crystal: cell %q has angle %g outside (0, 180)", c.Name, ang)
		}
	}
	if c.volumeFactor() <= 0 {
		return fmt.Errorf("crystal: cell %q angles %g/%g/%g do not close a lattice", c.Name, c.Alpha, c.Beta, c.Gamma)
	}
	return nil
}

// volumeFactor is (V/abc)², which must be positive for a valid cell.
func (c UnitCell) volumeFactor() float64 {
	ca := math.Cos(c.Alpha * math.Pi / 180)
	cb := math.Cos(c.Beta * math.Pi / 180)
	cg := math.Cos(c.Gamma * math.Pi / 180)
	return 1 - ca*ca - cb*cb - cg*cg + 2*ca*cb*cg
}

// Volume returns the cell volume in Å³.
func (c UnitCell) Volume() float64 {
	return c.A * c.B * c.C * math.Sqrt(c.volumeFactor())
}

// RealBasis returns the 3x3 matrix whose columns are the lattice vectors
// a, b, c in a Cartesian frame (Å): a along x, b in the xy-plane.
func (c UnitCell) RealBasis() *mat.Dense {
	ca := math.Cos(c.Alpha * math.Pi / 180)
	cb := math.Cos(c.Beta * math.Pi / 180)
	cg := math.Cos(c.Gamma * math.Pi / 180)
	sg := math.Sin(c.Gamma * math.Pi / 180)
	v := c.Volume()

	return mat.NewDense(3, 3, []float64{
		c.A, c.B * cg, c.C * cb,
		0, c.B * sg, c.C * (ca - cb*cg) / sg,
		0, 0, v / (c.A * c.B * sg),
	})
}

// ReciprocalBasis returns the 3x3 matrix B whose product with a Miller
// index column (h,k,l) is the reciprocal-lattice vector g in a Cartesian
// frame (Å⁻¹), |g| = 1/d. Busing-Levy convention: a* along x, b* in the
// xy-plane.
func (c UnitCell) ReciprocalBasis() *mat.Dense {
	ra := math.Pi / 180
	ca, cb, cg := math.Cos(c.Alpha*ra), math.Cos(c.Beta*ra), math.Cos(c.Gamma*ra)
	sa, sb, sg := math.Sin(c.Alpha*ra), math.Sin(c.Beta*ra), math.Sin(c.Gamma*ra)
	v := c.Volume()

	as := c.B * c.C * sa / v
	bs := c.A * c.C * sb / v
	cs := c.A * c.B * sg / v
	cbs := (ca*cg - cb) / (sa * sg)
	cgs := (ca*cb - cg) / (sa * sb)
	sgs := math.Sqrt(1 - cgs*cgs)

	return mat.NewDense(3, 3, []float64{
		as, bs * cgs, cs * cbs,
		0, bs * sgs, -cs * math.Sqrt(1-cbs*cbs) * ca,
		0, 0, 1 / c.C,
	})
}

// D returns the d-spacing of reflection (h,k,l) in Å.
func (c UnitCell) D(h, k, l int) float64 {
	b := basisOf(c)
	gx, gy, gz := b.g(h, k, l)
	return 1 / math.Sqrt(gx*gx+gy*gy+gz*gz)
}

// basis is the reciprocal basis flattened for the hot enumeration and
// projection loops.
type basis [3][3]float64

func basisOf(c UnitCell) basis {
	m := c.ReciprocalBasis()
	var b basis
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			b[i][j] = m.At(i, j)
		}
	}
	return b
}

// g returns the Cartesian reciprocal vector of (h,k,l) in Å⁻¹.
func (b basis) g(h, k, l int) (gx, gy, gz float64) {
	fh, fk, fl := float64(h), float64(k), float64(l)
	gx = b[0][0]*fh + b[0][1]*fk + b[0][2]*fl
	gy = b[1][0]*fh + b[1][1]*fk + b[1][2]*fl
	gz = b[2][0]*fh + b[2][1]*fk + b[2][2]*fl
	return gx, gy, gz
}

// CheckConsistent verifies that the lattice parameters obey the metric
// constraints of the space group's crystal system, e.g. a cubic symbol
// with unequal lengths is rejected. Trigonal and rhombohedral groups are
// expected in the hexagonal setting.
func CheckConsistent(c UnitCell, sg *SpaceGroup) error {
	const lenTol = 1e-4
	const angTol = 1e-4

	eqLen := func(x, y float64) bool { return math.Abs(x-y) <= lenTol }
	eqAng := func(x, y float64) bool { return math.Abs(x-y) <= angTol }

	switch sg.System {
	case Triclinic:
		// No metric constraints.
	case Monoclinic:
		if !eqAng(c.Alpha, 90) || !eqAng(c.Gamma, 90) {
			return fmt.Errorf("crystal: monoclinic %s needs alpha=gamma=90 (got %g, %g)", sg.Symbol, c.Alpha, c.Gamma)
		}
	case Orthorhombic:
		if !eqAng(c.Alpha, 90) || !eqAng(c.Beta, 90) || !eqAng(c.Gamma, 90) {
			return fmt.Errorf("crystal: orthorhombic %s needs all angles 90", sg.Symbol)
		}
	case Tetragonal:
		if !eqLen(c.A, c.B) || !eqAng(c.Alpha, 90) || !eqAng(c.Beta, 90) || !eqAng(c.Gamma, 90) {
			return fmt.Errorf("crystal: tetragonal %s needs a=b and all angles 90", sg.Symbol)
		}
	case Trigonal, Hexagonal:
		if !eqLen(c.A, c.B) || !eqAng(c.Alpha, 90) || !eqAng(c.Beta, 90) || !eqAng(c.Gamma, 120) {
			return fmt.Errorf("crystal: %s (hexagonal setting) needs a=b, alpha=beta=90, gamma=120", sg.Symbol)
		}
	case Cubic:
		if !eqLen(c.A, c.B) || !eqLen(c.B, c.C) || !eqAng(c.Alpha, 90) || !eqAng(c.Beta, 90) || !eqAng(c.Gamma, 90) {
			return fmt.Errorf("crystal: cubic %s needs a=b=c and all angles 90", sg.Symbol)
		}
	}
	return nil
}
