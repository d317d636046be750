// Package indexing matches observed diffraction patterns against an
// orientation library, refines the matched solutions and extracts
// reflection intensities at the projected spot positions.
package indexing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"serialed/pkg/pattern"
	"serialed/pkg/projection"
)

// ErrUnindexed marks an image for which no acceptable orientation was
// found. It wraps the per-image detail, so callers can test with
// errors.Is and keep the batch going.
var ErrUnindexed = errors.New("indexing: no acceptable orientation")

// Result is one scored orientation assignment for an image. Alpha and
// Beta fix the zone axis, Gamma the in-plane rotation; CenterX, CenterY
// and Scale map reciprocal coordinates onto image pixels.
type Result struct {
	Image string

	// Score is the raw matching score for a single-phase search. In
	// multi-phase rankings it is scaled by the cell volume so phases
	// with different reciprocal densities can be compared.
	Score float64

	// Orientation is the library grid index the solution started from.
	Orientation int

	Alpha, Beta, Gamma float64
	CenterX, CenterY   float64
	Scale              float64

	// Phase names the cell this solution belongs to.
	Phase string

	// Varied lists the parameter groups refinement was allowed to
	// change; it stays empty until Refine runs. Improved reports
	// whether refinement actually raised the score.
	Varied   string
	Improved bool
}

// Options configures an Indexer.
type Options struct {
	// Scale converts reciprocal coordinates (1/Å) into pixels; it is
	// the inverse of the calibrated pixel size.
	Scale float64

	// NSolutions is how many top orientations a search returns.
	NSolutions int

	// MinSpots skips library orientations whose projection carries too
	// few reflections to score reliably.
	MinSpots int

	// MinScore rejects an image whose best candidate stays below this
	// floor. Zero accepts any orientation that matched signal at all.
	MinScore float64

	// PresenceEps is the intensity floor above which a sampled pixel
	// counts as a present reflection.
	PresenceEps float64
}

func (o *Options) setDefaults() {
	if o.NSolutions <= 0 {
		o.NSolutions = 25
	}
	if o.MinSpots <= 0 {
		o.MinSpots = 10
	}
}

// Indexer scores a pattern against every orientation of one library.
type Indexer struct {
	lib *projection.Library
	opt Options
}

// NewIndexer builds an indexer for one phase.
func NewIndexer(lib *projection.Library, opt Options) (*Indexer, error) {
	if lib == nil {
		return nil, fmt.Errorf("indexing: nil library")
	}
	if opt.Scale <= 0 {
		return nil, fmt.Errorf("indexing: scale %g must be positive", opt.Scale)
	}
	opt.setDefaults()
	return &Indexer{lib: lib, opt: opt}, nil
}

// Library exposes the orientation library the indexer searches.
func (ix *Indexer) Library() *projection.Library {
	return ix.lib
}

// Phase returns the cell name this indexer serves.
func (ix *Indexer) Phase() string {
	return ix.lib.Cell.Name
}

// Index locates the best orientations for the pattern. It is the main
// entry point for one image: an empty peak list, an all-zero search or
// a best score below MinScore yields ErrUnindexed.
func (ix *Indexer) Index(pat *pattern.Pattern) ([]Result, error) {
	return ix.FindOrientation(pat)
}

// candidate is one per-orientation best before ranking.
type candidate struct {
	score float64
	n     int
	gamma float64
}

// FindOrientation scans the whole library. For every grid orientation
// the in-plane rotation is swept over a full turn at the library's
// angular step and only the best rotation survives; the per-orientation
// bests are then ranked by score. Ties keep the lower grid index, so
// the ranking is reproducible.
func (ix *Indexer) FindOrientation(pat *pattern.Pattern) ([]Result, error) {
	if len(pat.Peaks) == 0 {
		return nil, fmt.Errorf("%w: image %q has an empty peak list", ErrUnindexed, pat.Name)
	}

	nGamma := ix.lib.GammaSteps()
	step := ix.lib.Params.AngularStep
	cg := make([]float64, nGamma)
	sg := make([]float64, nGamma)
	for j := 0; j < nGamma; j++ {
		g := float64(j) * step
		cg[j], sg[j] = math.Cos(g), math.Sin(g)
	}

	var vals []candidate
	for n, spots := range ix.lib.Projections {
		if len(spots) < ix.opt.MinSpots {
			continue
		}
		best, bestGamma := 0.0, 0.0
		for j := 0; j < nGamma; j++ {
			s := scoreSpots(pat.Pix, pat.Width, pat.Height, spots,
				cg[j], sg[j], ix.opt.Scale, pat.CenterX, pat.CenterY, ix.opt.PresenceEps)
			if s > best {
				best = s
				bestGamma = float64(j) * step
			}
		}
		vals = append(vals, candidate{score: best, n: n, gamma: bestGamma})
	}

	sort.SliceStable(vals, func(i, j int) bool { return vals[i].score > vals[j].score })
	if len(vals) == 0 || vals[0].score <= 0 {
		return nil, fmt.Errorf("%w: image %q matched nothing", ErrUnindexed, pat.Name)
	}
	if vals[0].score < ix.opt.MinScore {
		return nil, fmt.Errorf("%w: image %q scored %.4g, below the %g floor",
			ErrUnindexed, pat.Name, vals[0].score, ix.opt.MinScore)
	}
	if len(vals) > ix.opt.NSolutions {
		vals = vals[:ix.opt.NSolutions]
	}

	results := make([]Result, len(vals))
	for i, v := range vals {
		ax := ix.lib.Axes[v.n]
		results[i] = Result{
			Image:       pat.Name,
			Score:       v.score,
			Orientation: v.n,
			Alpha:       ax.Alpha,
			Beta:        ax.Beta,
			Gamma:       v.gamma,
			CenterX:     pat.CenterX,
			CenterY:     pat.CenterY,
			Scale:       ix.opt.Scale,
			Phase:       ix.Phase(),
		}
	}
	return results, nil
}

// Score evaluates one fully specified solution against the image, using
// the same weighted-presence measure as the search.
func (ix *Indexer) Score(pat *pattern.Pattern, res Result) float64 {
	spots := ix.lib.Project(res.Alpha, res.Beta)
	return scoreSpots(pat.Pix, pat.Width, pat.Height, spots,
		math.Cos(res.Gamma), math.Sin(res.Gamma),
		res.Scale, res.CenterX, res.CenterY, ix.opt.PresenceEps)
}

// scoreSpots is the scoring kernel: rotate the projected spots by gamma,
// map them onto pixels, and accumulate the visibility-weighted image
// intensity times the weighted fraction of spots that landed on signal.
// Spots outside the image are left out of both sums.
func scoreSpots(pix []float64, w, h int, spots []projection.Spot, cosG, sinG, scale, cx, cy, eps float64) float64 {
	var sumI, sumW, present float64
	for i := range spots {
		s := &spots[i]
		xr := s.X*cosG - s.Y*sinG
		yr := s.X*sinG + s.Y*cosG
		px := int(xr*scale + cx)
		py := int(yr*scale + cy)
		if px < 0 || px >= w || py < 0 || py >= h {
			continue
		}
		v := pix[py*w+px]
		sumW += s.W
		sumI += s.W * v
		if v > eps {
			present += s.W
		}
	}
	if sumW == 0 {
		return 0
	}
	return sumI * (present / sumW)
}
