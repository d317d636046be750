// Package pattern loads observed diffraction images together with the
// beam-center and peak metadata produced by upstream preprocessing.
package pattern

import (
	"fmt"
)

// Peak is one detected diffraction peak in pixel coordinates.
type Peak struct {
	X, Y      float64
	Intensity float64
}

// Pattern is a single observed diffraction image. Pixels are stored
// row-major as float64 regardless of the source bit depth; Pix[y*Width+x]
// addresses column x of row y.
type Pattern struct {
	// Name identifies the image, normally the file stem.
	Name string

	Width, Height int
	Pix           []float64

	// CenterX, CenterY locate the primary beam in pixels.
	CenterX, CenterY float64

	// Peaks is the preprocessed peak list. An empty list means the
	// image carries no usable diffraction signal and will be reported
	// unindexed.
	Peaks []Peak
}

// At returns the pixel at (x, y). It panics on out-of-range access;
// the scoring loops do their own bounds checks and index Pix directly.
func (p *Pattern) At(x, y int) float64 {
	if x < 0 || x >= p.Width || y < 0 || y >= p.Height {
		panic(fmt.Sprintf("pattern: pixel (%d,%d) outside %dx%d image %q", x, y, p.Width, p.Height, p.Name))
	}
	return p.Pix[y*p.Width+x]
}

// DiskMax returns a copy of the pattern where every pixel holds the
// maximum of the disk of the given radius around it. Sampling the
// filtered image at projected positions tolerates small position errors
// when reflection intensities are extracted.
func (p *Pattern) DiskMax(radius int) *Pattern {
	if radius < 1 {
		return p
	}
	type offset struct{ dx, dy int }
	var disk []offset
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				disk = append(disk, offset{dx, dy})
			}
		}
	}

	out := &Pattern{
		Name:    p.Name,
		Width:   p.Width,
		Height:  p.Height,
		Pix:     make([]float64, len(p.Pix)),
		CenterX: p.CenterX,
		CenterY: p.CenterY,
		Peaks:   p.Peaks,
	}
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			best := p.Pix[y*p.Width+x]
			for _, o := range disk {
				nx, ny := x+o.dx, y+o.dy
				if nx < 0 || nx >= p.Width || ny < 0 || ny >= p.Height {
					continue
				}
				if v := p.Pix[ny*p.Width+nx]; v > best {
					best = v
				}
			}
			out.Pix[y*p.Width+x] = best
		}
	}
	return out
}
