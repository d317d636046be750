package indexing

import (
	"math"

	"serialed/pkg/pattern"
	"serialed/pkg/projection"
)

// SynthOptions controls how a projection is rendered into a synthetic
// diffraction image.
type SynthOptions struct {
	Width, Height    int
	CenterX, CenterY float64

	// Scale converts reciprocal coordinates into pixels, matching the
	// indexer's Scale option.
	Scale float64

	// Gamma rotates the projection in-plane before painting.
	Gamma float64

	// BaseIntensity is the painted peak height; each spot contributes
	// BaseIntensity times its visibility weight. SpotRadius is the disk
	// radius in pixels.
	BaseIntensity float64
	SpotRadius    int
}

// Synthesize renders a spot list into an image the indexer can consume,
// using the exact pixel mapping of the scoring kernel. Painted spots
// are also recorded as peaks, so the synthetic pattern passes the
// empty-peak-list gate. Useful for round-trip checks and self tests.
func Synthesize(spots []projection.Spot, name string, opt SynthOptions) *pattern.Pattern {
	p := &pattern.Pattern{
		Name:    name,
		Width:   opt.Width,
		Height:  opt.Height,
		Pix:     make([]float64, opt.Width*opt.Height),
		CenterX: opt.CenterX,
		CenterY: opt.CenterY,
	}
	if opt.BaseIntensity <= 0 {
		opt.BaseIntensity = 1000
	}
	if opt.SpotRadius < 1 {
		opt.SpotRadius = 1
	}

	cosG, sinG := math.Cos(opt.Gamma), math.Sin(opt.Gamma)
	r2 := opt.SpotRadius * opt.SpotRadius
	for i := range spots {
		s := &spots[i]
		xr := s.X*cosG - s.Y*sinG
		yr := s.X*sinG + s.Y*cosG
		px := int(xr*opt.Scale + opt.CenterX)
		py := int(yr*opt.Scale + opt.CenterY)
		if px < 0 || px >= opt.Width || py < 0 || py >= opt.Height {
			continue
		}
		v := opt.BaseIntensity * s.W
		for dy := -opt.SpotRadius; dy <= opt.SpotRadius; dy++ {
			for dx := -opt.SpotRadius; dx <= opt.SpotRadius; dx++ {
				if dx*dx+dy*dy > r2 {
					continue
				}
				nx, ny := px+dx, py+dy
				if nx < 0 || nx >= opt.Width || ny < 0 || ny >= opt.Height {
					continue
				}
				if at := ny*opt.Width + nx; p.Pix[at] < v {
					p.Pix[at] = v
				}
			}
		}
		p.Peaks = append(p.Peaks, pattern.Peak{X: float64(px), Y: float64(py), Intensity: v})
	}
	return p
}
