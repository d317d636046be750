package indexing

import (
	"math"

	"serialed/internal/models"
	"serialed/pkg/pattern"
)

// ExtractIntensities samples the image at the projected spot positions
// of a solved orientation and returns one observation per spot that
// lands inside the frame. With radius > 1 the image is run through a
// disk maximum filter first, which forgives small residual position
// errors. Indices come back as projected; symmetry reduction is the
// merger's job.
func (ix *Indexer) ExtractIntensities(pat *pattern.Pattern, res Result, radius int) []models.Observation {
	img := pat
	if radius > 1 {
		img = pat.DiskMax(radius)
	}

	spots := ix.lib.Project(res.Alpha, res.Beta)
	cosG, sinG := math.Cos(res.Gamma), math.Sin(res.Gamma)

	obs := make([]models.Observation, 0, len(spots))
	for i := range spots {
		s := &spots[i]
		xr := s.X*cosG - s.Y*sinG
		yr := s.X*sinG + s.Y*cosG
		px := int(xr*res.Scale + res.CenterX)
		py := int(yr*res.Scale + res.CenterY)
		if px < 0 || px >= img.Width || py < 0 || py >= img.Height {
			continue
		}
		obs = append(obs, models.Observation{
			H: s.H, K: s.K, L: s.L,
			Intensity: img.Pix[py*img.Width+px],
		})
	}
	return obs
}
