package crystal

import "math"

// ZoneRegion bounds the asymmetric region of zone-axis space for a Laue
// class: the set of beam directions that covers every symmetry-distinct
// orientation exactly once (up to the in-plane rotation, which is
// searched separately). Directions are parameterized by polar angle
// alpha from the Cartesian z-axis and azimuth beta from x.
type ZoneRegion struct {
	// BetaMin and BetaMax bound the azimuth wedge in radians.
	BetaMin, BetaMax float64

	// BetaOpen marks a pure-rotation azimuth edge: BetaMax is exclusive
	// because it wraps back onto BetaMin. Mirror-bounded wedges keep
	// both edges.
	BetaOpen bool

	// AlphaMax returns the polar limit at a given azimuth. It never
	// exceeds pi/2: the lower hemisphere repeats the upper one for
	// diffraction because an inverted zone axis gives the same pattern
	// rotated by pi.
	AlphaMax func(beta float64) float64
}

func halfPi(float64) float64 { return math.Pi / 2 }

// cubicM3Alpha limits the m-3 quadrilateral [001]-[101]-[111]-[011].
func cubicM3Alpha(beta float64) float64 {
	c := math.Cos(beta)
	if s := math.Sin(beta); s > c {
		c = s
	}
	return math.Atan2(1, c)
}

// cubicM3MAlpha limits the m-3m triangle [001]-[101]-[111].
func cubicM3MAlpha(beta float64) float64 {
	return math.Atan2(1, math.Cos(beta))
}

// ZoneRegion returns the asymmetric zone-axis region of the group's
// Laue class. Trigonal -3m groups come in two settings whose wedge sits
// at different azimuths; the parsed symbol decides which one applies.
func (sg *SpaceGroup) ZoneRegion() ZoneRegion {
	switch sg.Laue {
	case Laue1:
		return ZoneRegion{BetaMax: 2 * math.Pi, BetaOpen: true, AlphaMax: halfPi}
	case Laue2m:
		return ZoneRegion{BetaMax: math.Pi, AlphaMax: halfPi}
	case LaueMMM:
		return ZoneRegion{BetaMax: math.Pi / 2, AlphaMax: halfPi}
	case Laue4m:
		return ZoneRegion{BetaMax: math.Pi / 2, BetaOpen: true, AlphaMax: halfPi}
	case Laue4mm:
		return ZoneRegion{BetaMax: math.Pi / 4, AlphaMax: halfPi}
	case Laue3:
		return ZoneRegion{BetaMax: 2 * math.Pi / 3, BetaOpen: true, AlphaMax: halfPi}
	case Laue3m:
		if sg.tert3Fold {
			// 312-type: mirrors sit at azimuths 30 and 90 degrees.
			return ZoneRegion{BetaMin: math.Pi / 6, BetaMax: math.Pi / 2, AlphaMax: halfPi}
		}
		return ZoneRegion{BetaMax: math.Pi / 3, AlphaMax: halfPi}
	case Laue6m:
		return ZoneRegion{BetaMax: math.Pi / 3, BetaOpen: true, AlphaMax: halfPi}
	case Laue6mm:
		return ZoneRegion{BetaMax: math.Pi / 6, AlphaMax: halfPi}
	case LaueM3:
		return ZoneRegion{BetaMax: math.Pi / 2, AlphaMax: cubicM3Alpha}
	case LaueM3M:
		return ZoneRegion{BetaMax: math.Pi / 4, AlphaMax: cubicM3MAlpha}
	}
	return ZoneRegion{BetaMax: 2 * math.Pi, BetaOpen: true, AlphaMax: halfPi}
}
