package projection

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"serialed/pkg/crystal"
)

// ErrEmptyShell is returned when no allowed reflection falls inside the
// requested resolution range.
var ErrEmptyShell = errors.New("projection: no reflections in resolution shell")

// Spot is one projected reflection of a single orientation. X and Y are
// reciprocal-space detector coordinates in 1/Å, before any scaling to
// pixels. W is the excitation-error visibility weight in (0, 1].
type Spot struct {
	H, K, L int
	X, Y    float64
	W       float64
}

// Params bundles the physical settings of a projection library.
type Params struct {
	// Dmin and Dmax bound the resolution shell in Å.
	Dmin, Dmax float64

	// Thickness is the effective crystal thickness in Å. It sets the
	// excitation-error cutoff 1/(2*Thickness) and the width of the
	// visibility weight.
	Thickness float64

	// Wavelength is the electron wavelength in Å.
	Wavelength float64

	// AngularStep is the zone-axis grid spacing in radians.
	AngularStep float64

	// Workers caps the goroutines used while building projections.
	// Zero or negative means one per CPU.
	Workers int
}

// Validate rejects settings that cannot produce a usable library.
func (p Params) Validate() error {
	if p.Dmin <= 0 || p.Dmax < p.Dmin {
		return fmt.Errorf("projection: bad resolution range [%g, %g]", p.Dmin, p.Dmax)
	}
	if p.Thickness <= 0 {
		return fmt.Errorf("projection: thickness %g must be positive", p.Thickness)
	}
	if p.Wavelength <= 0 {
		return fmt.Errorf("projection: wavelength %g must be positive", p.Wavelength)
	}
	if p.AngularStep <= 0 || p.AngularStep > math.Pi/4 {
		return fmt.Errorf("projection: angular step %g out of (0, pi/4]", p.AngularStep)
	}
	return nil
}

// projRef caches the reciprocal vector of one allowed reflection.
type projRef struct {
	h, k, l    int
	gx, gy, gz float64
	g2         float64
}

// Projector rotates the allowed reflections of one phase into the lab
// frame and keeps the spots close enough to the Ewald plane to show up
// on the detector.
type Projector struct {
	Cell  crystal.UnitCell
	Group *crystal.SpaceGroup

	refs    []projRef
	smax    float64
	thick   float64
	halfLam float64
}

// NewProjector prepares the projection machinery for one phase. It
// fails when the cell and space group disagree or when the resolution
// shell holds no reflections.
func NewProjector(cell crystal.UnitCell, group *crystal.SpaceGroup, p Params) (*Projector, error) {
	if err := cell.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := crystal.CheckConsistent(cell, group); err != nil {
		return nil, err
	}

	all := crystal.Generate(cell, group, p.Dmin, p.Dmax)
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: cell %q, d in [%g, %g]", ErrEmptyShell, cell.Name, p.Dmin, p.Dmax)
	}

	b := cell.ReciprocalBasis()
	var bf [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			bf[i][j] = b.At(i, j)
		}
	}

	refs := make([]projRef, len(all))
	for i, r := range all {
		fh, fk, fl := float64(r.H), float64(r.K), float64(r.L)
		gx := bf[0][0]*fh + bf[0][1]*fk + bf[0][2]*fl
		gy := bf[1][0]*fh + bf[1][1]*fk + bf[1][2]*fl
		gz := bf[2][0]*fh + bf[2][1]*fk + bf[2][2]*fl
		refs[i] = projRef{h: r.H, k: r.K, l: r.L, gx: gx, gy: gy, gz: gz, g2: gx*gx + gy*gy + gz*gz}
	}

	return &Projector{
		Cell:    cell,
		Group:   group,
		refs:    refs,
		smax:    1 / (2 * p.Thickness),
		thick:   p.Thickness,
		halfLam: p.Wavelength / 2,
	}, nil
}

// NReflections returns how many allowed reflections feed the projector.
func (p *Projector) NReflections() int {
	return len(p.refs)
}

// Project returns the visible spots for the beam along the zone axis
// (alpha, beta). The in-plane rotation gamma is not applied here; it is
// a flat 2D rotation of the returned coordinates and is scanned at
// scoring time.
func (p *Projector) Project(alpha, beta float64) []Spot {
	ca, sa := math.Cos(alpha), math.Sin(alpha)
	cb, sb := math.Cos(beta), math.Sin(beta)

	// R = Ry(-alpha)*Rz(-beta) takes the zone axis onto +z.
	r00, r01, r02 := ca*cb, ca*sb, -sa
	r10, r11 := -sb, cb
	r20, r21, r22 := sa*cb, sa*sb, ca

	var spots []Spot
	for i := range p.refs {
		r := &p.refs[i]
		gz := r20*r.gx + r21*r.gy + r22*r.gz
		s := -gz - p.halfLam*r.g2
		if s < -p.smax || s > p.smax {
			continue
		}
		x := r00*r.gx + r01*r.gy + r02*r.gz
		y := r10*r.gx + r11*r.gy
		spots = append(spots, Spot{
			H: r.h, K: r.k, L: r.l,
			X: x, Y: y,
			W: sinc2(math.Pi * p.thick * s),
		})
	}
	return spots
}

// sinc2 is (sin x / x)^2 with the removable singularity filled in.
func sinc2(x float64) float64 {
	if x > -1e-12 && x < 1e-12 {
		return 1
	}
	s := math.Sin(x) / x
	return s * s
}

// Library is a complete orientation library for one phase: the sampled
// zone axes and one projected spot list per axis.
type Library struct {
	Cell   crystal.UnitCell
	Group  *crystal.SpaceGroup
	Params Params

	Axes        []ZoneAxis
	Projections [][]Spot

	// NReflections counts the allowed reflections in the shell and
	// NUnique the symmetry-distinct ones. NUnique is the completeness
	// denominator when merged data is judged later.
	NReflections int
	NUnique      int

	proj *Projector
}

// Build generates the full library for one phase: the grid over the
// Laue asymmetric region and, in parallel, the projection of every
// orientation.
func Build(cell crystal.UnitCell, group *crystal.SpaceGroup, p Params) (*Library, error) {
	proj, err := NewProjector(cell, group, p)
	if err != nil {
		return nil, err
	}

	axes := BuildGrid(group.ZoneRegion(), p.AngularStep)
	lib := &Library{
		Cell:         cell,
		Group:        group,
		Params:       p,
		Axes:         axes,
		Projections:  make([][]Spot, len(axes)),
		NReflections: proj.NReflections(),
		NUnique:      len(crystal.Unique(cell, group, p.Dmin, p.Dmax)),
		proj:         proj,
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(axes) {
		workers = len(axes)
	}
	if workers < 1 {
		workers = 1
	}

	// Each worker fills a contiguous slice of the projection table, so
	// the result is identical no matter how many workers run.
	chunk := (len(axes) + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= len(axes) {
			break
		}
		end := start + chunk
		if end > len(axes) {
			end = len(axes)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				lib.Projections[i] = proj.Project(axes[i].Alpha, axes[i].Beta)
			}
		}(start, end)
	}
	wg.Wait()

	return lib, nil
}

// Project computes the spot list for an arbitrary orientation, which
// the refinement stage needs between grid points.
func (l *Library) Project(alpha, beta float64) []Spot {
	return l.proj.Project(alpha, beta)
}

// GammaSteps returns how many in-plane rotation samples cover a full
// turn at the library's angular step.
func (l *Library) GammaSteps() int {
	return int(2 * math.Pi / l.Params.AngularStep)
}
