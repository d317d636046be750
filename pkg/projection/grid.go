// Package projection generates orientation libraries for diffraction
// indexing: a near-uniform grid of zone axes over the asymmetric region
// of the crystal's Laue class, and for every grid point the projected
// reflection positions with their excitation-error weights.
package projection

import (
	"math"

	"serialed/pkg/crystal"
)

// ZoneAxis is one sampled beam direction in the crystal frame. Alpha is
// the polar angle from the Cartesian z-axis, Beta the azimuth from x,
// both in radians.
type ZoneAxis struct {
	Alpha, Beta float64
}

// boundary slack for the closed region edges
const gridEps = 1e-9

// BuildGrid samples the region on polar rings spaced by step radians.
// Each ring stretches its azimuth spacing by 1/sin(alpha), which keeps
// the point density near-uniform over the sphere and collapses the pole
// to a single axis. The walk order is fixed, so the grid is reproducible
// for a given region and step.
func BuildGrid(reg crystal.ZoneRegion, step float64) []ZoneAxis {
	var axes []ZoneAxis
	for i := 0; ; i++ {
		alpha := float64(i) * step
		if alpha > math.Pi/2+gridEps {
			break
		}
		sa := math.Sin(alpha)
		if sa < gridEps {
			axes = append(axes, ZoneAxis{Alpha: alpha, Beta: reg.BetaMin})
			continue
		}
		bstep := step / sa
		for j := 0; ; j++ {
			beta := reg.BetaMin + float64(j)*bstep
			if reg.BetaOpen {
				if beta >= reg.BetaMax-gridEps {
					break
				}
			} else if beta > reg.BetaMax+gridEps {
				break
			}
			if alpha <= reg.AlphaMax(beta)+gridEps {
				axes = append(axes, ZoneAxis{Alpha: alpha, Beta: beta})
			}
		}
	}
	return axes
}

// Direction returns the zone axis as a unit vector in the crystal frame.
func (z ZoneAxis) Direction() (x, y, w float64) {
	sa := math.Sin(z.Alpha)
	return sa * math.Cos(z.Beta), sa * math.Sin(z.Beta), math.Cos(z.Alpha)
}
