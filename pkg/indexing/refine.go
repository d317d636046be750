package indexing

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/optimize"

	"serialed/pkg/pattern"
)

// VaryFlags selects which solution parameters refinement may adjust.
// Alpha and beta always move together: they are two halves of one zone
// axis.
type VaryFlags struct {
	Center bool
	Scale  bool
	Angles bool
	Gamma  bool
}

// VaryAll frees every parameter group.
func VaryAll() VaryFlags {
	return VaryFlags{Center: true, Scale: true, Angles: true, Gamma: true}
}

func (v VaryFlags) names() string {
	var parts []string
	if v.Center {
		parts = append(parts, "center")
	}
	if v.Scale {
		parts = append(parts, "scale")
	}
	if v.Angles {
		parts = append(parts, "angles")
	}
	if v.Gamma {
		parts = append(parts, "gamma")
	}
	return strings.Join(parts, ",")
}

// RefineOptions configures the local optimization of one solution.
type RefineOptions struct {
	// Method picks the optimizer: "neldermead" (default) runs a simplex
	// search, "coordinate" a cyclic per-parameter line search.
	Method string

	Vary VaryFlags

	// MaxIter caps optimizer iterations; Tol is the absolute objective
	// convergence threshold.
	MaxIter int
	Tol     float64
}

func (o *RefineOptions) setDefaults() {
	if o.Method == "" {
		o.Method = "neldermead"
	}
	if o.MaxIter <= 0 {
		o.MaxIter = 200
	}
	if o.Tol <= 0 {
		o.Tol = 1e-4
	}
}

// centerWindow bounds how far the beam center may drift in pixels, and
// scaleWindow how far the pixel calibration may stretch relative to the
// starting solution.
const (
	centerWindow = 2.0
	scaleLo      = 0.8
	scaleHi      = 1.2
)

// refineSpace maps the free parameters onto an optimization vector and
// back, and penalizes leaving the trust window around the seed.
type refineSpace struct {
	seed Result
	vary VaryFlags
	idx  struct{ cx, cy, scale, alpha, beta, gamma int }
	dim  int
}

func newRefineSpace(seed Result, vary VaryFlags) *refineSpace {
	sp := &refineSpace{seed: seed, vary: vary}
	sp.idx.cx, sp.idx.cy, sp.idx.scale, sp.idx.alpha, sp.idx.beta, sp.idx.gamma = -1, -1, -1, -1, -1, -1
	n := 0
	if vary.Center {
		sp.idx.cx = n
		sp.idx.cy = n + 1
		n += 2
	}
	if vary.Scale {
		sp.idx.scale = n
		n++
	}
	if vary.Angles {
		sp.idx.alpha = n
		sp.idx.beta = n + 1
		n += 2
	}
	if vary.Gamma {
		sp.idx.gamma = n
		n++
	}
	sp.dim = n
	return sp
}

func (sp *refineSpace) start() []float64 {
	x := make([]float64, sp.dim)
	if sp.idx.cx >= 0 {
		x[sp.idx.cx] = sp.seed.CenterX
		x[sp.idx.cy] = sp.seed.CenterY
	}
	if sp.idx.scale >= 0 {
		x[sp.idx.scale] = sp.seed.Scale
	}
	if sp.idx.alpha >= 0 {
		x[sp.idx.alpha] = sp.seed.Alpha
		x[sp.idx.beta] = sp.seed.Beta
	}
	if sp.idx.gamma >= 0 {
		x[sp.idx.gamma] = sp.seed.Gamma
	}
	return x
}

// decode turns an optimization vector into a candidate Result, clamped
// to the trust window. The second return value measures how far outside
// the window the raw vector was; it feeds the objective as a penalty so
// the simplex walks back in.
func (sp *refineSpace) decode(x []float64) (Result, float64) {
	res := sp.seed
	var overshoot float64

	clamp := func(v, lo, hi float64) float64 {
		if v < lo {
			overshoot += lo - v
			return lo
		}
		if v > hi {
			overshoot += v - hi
			return hi
		}
		return v
	}

	if sp.idx.cx >= 0 {
		res.CenterX = clamp(x[sp.idx.cx], sp.seed.CenterX-centerWindow, sp.seed.CenterX+centerWindow)
		res.CenterY = clamp(x[sp.idx.cy], sp.seed.CenterY-centerWindow, sp.seed.CenterY+centerWindow)
	}
	if sp.idx.scale >= 0 {
		res.Scale = clamp(x[sp.idx.scale], sp.seed.Scale*scaleLo, sp.seed.Scale*scaleHi)
	}
	if sp.idx.alpha >= 0 {
		res.Alpha = x[sp.idx.alpha]
		res.Beta = x[sp.idx.beta]
	}
	if sp.idx.gamma >= 0 {
		res.Gamma = x[sp.idx.gamma]
	}
	return res, overshoot
}

// Refine locally optimizes one solution against the image. The
// objective is 1000/(1+score), so minimizing it maximizes the score.
// When the optimizer diverges, walks out of the trust window for good,
// or lands on a worse score, the original result comes back unchanged
// with Improved set to false.
func (ix *Indexer) Refine(pat *pattern.Pattern, res Result, opt RefineOptions) Result {
	opt.setDefaults()
	out := res
	out.Varied = opt.Vary.names()
	out.Improved = false
	if opt.Vary == (VaryFlags{}) {
		return out
	}

	sp := newRefineSpace(res, opt.Vary)
	obj := func(x []float64) float64 {
		cand, overshoot := sp.decode(x)
		score := ix.Score(pat, cand)
		return 1e3/(1+score) + 1e3*overshoot*overshoot
	}

	var xBest []float64
	switch opt.Method {
	case "coordinate":
		xBest = coordinateDescent(obj, sp.start(), sp.steps(ix.lib.Params.AngularStep), opt.MaxIter, opt.Tol)
	default:
		problem := optimize.Problem{Func: obj}
		settings := &optimize.Settings{
			Converger: &optimize.FunctionConverge{
				Absolute:   opt.Tol,
				Iterations: 50,
			},
			MajorIterations: opt.MaxIter,
		}
		r, err := optimize.Minimize(problem, sp.start(), settings, &optimize.NelderMead{})
		if err != nil {
			return out
		}
		xBest = r.X
	}

	cand, overshoot := sp.decode(xBest)
	if overshoot > 0 {
		return out
	}
	cand.Image = res.Image
	cand.Varied = out.Varied
	cand.Score = ix.Score(pat, cand)
	if cand.Score <= res.Score {
		return out
	}
	cand.Improved = true
	return cand
}

// steps builds the initial per-parameter step sizes of the coordinate
// search: half a pixel for the center, one percent for the scale, and a
// quarter of the grid step for angles.
func (sp *refineSpace) steps(angularStep float64) []float64 {
	st := make([]float64, sp.dim)
	if sp.idx.cx >= 0 {
		st[sp.idx.cx] = 0.5
		st[sp.idx.cy] = 0.5
	}
	if sp.idx.scale >= 0 {
		st[sp.idx.scale] = 0.01 * sp.seed.Scale
	}
	if sp.idx.alpha >= 0 {
		st[sp.idx.alpha] = angularStep / 4
		st[sp.idx.beta] = angularStep / 4
	}
	if sp.idx.gamma >= 0 {
		st[sp.idx.gamma] = angularStep / 4
	}
	return st
}

// coordinateDescent cycles through the parameters, probing one step up
// and down, and halves every step when a full cycle brings no gain.
// It stops when the largest step drops below tol or the iteration cap
// is hit. No gradients, fully deterministic.
func coordinateDescent(obj func([]float64) float64, x0, steps []float64, maxIter int, tol float64) []float64 {
	x := append([]float64(nil), x0...)
	st := append([]float64(nil), steps...)
	f := obj(x)

	trial := make([]float64, len(x))
	for iter := 0; iter < maxIter; iter++ {
		improved := false
		for i := range x {
			if st[i] == 0 {
				continue
			}
			for _, d := range [2]float64{st[i], -st[i]} {
				copy(trial, x)
				trial[i] += d
				if ft := obj(trial); ft < f {
					copy(x, trial)
					f = ft
					improved = true
					break
				}
			}
		}
		if !improved {
			maxStep := 0.0
			for _, s := range st {
				if s > maxStep {
					maxStep = s
				}
			}
			if maxStep < tol {
				break
			}
			for i := range st {
				st[i] /= 2
			}
		}
	}
	return x
}

// RefineAll refines every solution in the slice and returns them
// re-ranked by refined score. The incoming slice is not modified.
func (ix *Indexer) RefineAll(pat *pattern.Pattern, results []Result, opt RefineOptions) []Result {
	refined := make([]Result, len(results))
	for i, r := range results {
		refined[i] = ix.Refine(pat, r, opt)
	}
	sortResults(refined)
	return refined
}

func sortResults(rs []Result) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Score > rs[j].Score })
}
