package crystal

// Systematic absences are assembled per Hermann-Mauguin field from the
// lattice centering, the glide-plane translations and the screw-axis
// translations. Zonal conditions are applied on every symmetry image of
// the glide plane's zone, so conditions generated by composing elements
// (for example the 4n serial rules of the diamond-glide cubic groups)
// fall out without a lookup table.

func buildAbsences(cent byte, sys System, fields []hmField) []absenceRule {
	var rules []absenceRule
	if r := centeringRule(cent); r != nil {
		rules = append(rules, r)
	}

	switch sys {
	case Monoclinic:
		rules = append(rules, monoclinicRules(fields)...)
	case Orthorhombic:
		rules = append(rules, orthorhombicRules(fields)...)
	case Tetragonal:
		rules = append(rules, tetragonalRules(fields)...)
	case Trigonal, Hexagonal:
		rules = append(rules, hexagonalRules(fields)...)
	case Cubic:
		rules = append(rules, cubicRules(fields)...)
	}
	return rules
}

func centeringRule(cent byte) absenceRule {
	switch cent {
	case 'A':
		return func(h, k, l int) bool { return (k+l)%2 != 0 }
	case 'B':
		return func(h, k, l int) bool { return (h+l)%2 != 0 }
	case 'C':
		return func(h, k, l int) bool { return (h+k)%2 != 0 }
	case 'I':
		return func(h, k, l int) bool { return (h+k+l)%2 != 0 }
	case 'F':
		return func(h, k, l int) bool { return (h+k)%2 != 0 || (h+l)%2 != 0 }
	case 'R':
		// Obverse hexagonal setting.
		return func(h, k, l int) bool { return mod(-h+k+l, 3) != 0 }
	}
	return nil
}

// mod is the non-negative remainder.
func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

func odd(a int) bool { return a%2 != 0 }

// zoneRule restricts cond to reflections satisfying the zone test.
func zoneRule(inZone func(h, k, l int) bool, cond func(h, k, l int) bool) absenceRule {
	return func(h, k, l int) bool { return inZone(h, k, l) && cond(h, k, l) }
}

// serialRule handles screw-axis conditions on one reciprocal axis:
// axis 0 means h00, 1 means 0k0, 2 means 00l.
func serialRule(axis, modN int) absenceRule {
	return func(h, k, l int) bool {
		switch axis {
		case 0:
			if k != 0 || l != 0 {
				return false
			}
			return mod(h, modN) != 0
		case 1:
			if h != 0 || l != 0 {
				return false
			}
			return mod(k, modN) != 0
		default:
			if h != 0 || k != 0 {
				return false
			}
			return mod(l, modN) != 0
		}
	}
}

// screwMod returns the translation denominator of a screw rotation
// token, or 0 when the token carries no translation.
func screwMod(rot string) int {
	switch rot {
	case "21", "42", "63":
		return 2
	case "31", "32", "62", "64":
		return 3
	case "41", "43":
		return 4
	case "61", "65":
		return 6
	}
	return 0
}

// axialGlide builds the zonal condition of a glide plane perpendicular
// to one of the cell axes. normal is 0 for a, 1 for b, 2 for c.
func axialGlide(normal int, letter byte) absenceRule {
	pick := func(h, k, l, axis int) int {
		switch axis {
		case 0:
			return h
		case 1:
			return k
		default:
			return l
		}
	}
	inZone := func(h, k, l int) bool { return pick(h, k, l, normal) == 0 }
	u, v := (normal+1)%3, (normal+2)%3 // in-plane axes

	switch letter {
	case 'a', 'b', 'c':
		t := int(letter - 'a')
		if t == normal {
			return nil
		}
		return zoneRule(inZone, func(h, k, l int) bool { return odd(pick(h, k, l, t)) })
	case 'n':
		return zoneRule(inZone, func(h, k, l int) bool { return odd(pick(h, k, l, u) + pick(h, k, l, v)) })
	case 'd':
		return zoneRule(inZone, func(h, k, l int) bool { return mod(pick(h, k, l, u)+pick(h, k, l, v), 4) != 0 })
	}
	return nil
}

func monoclinicRules(fields []hmField) []absenceRule {
	var rules []absenceRule
	f := fields[0]
	// b-unique setting: plane normal along b, screw axis along b.
	switch f.plane {
	case 'a':
		rules = append(rules, zoneRule(zoneK0, func(h, k, l int) bool { return odd(h) }))
	case 'c':
		rules = append(rules, zoneRule(zoneK0, func(h, k, l int) bool { return odd(l) }))
	case 'n':
		rules = append(rules, zoneRule(zoneK0, func(h, k, l int) bool { return odd(h + l) }))
	case 'd':
		rules = append(rules, zoneRule(zoneK0, func(h, k, l int) bool { return mod(h+l, 4) != 0 }))
	}
	if m := screwMod(f.rot); m != 0 {
		rules = append(rules, serialRule(1, m))
	}
	return rules
}

func zoneH0(h, k, l int) bool { return h == 0 }
func zoneK0(h, k, l int) bool { return k == 0 }
func zoneL0(h, k, l int) bool { return l == 0 }

func orthorhombicRules(fields []hmField) []absenceRule {
	var rules []absenceRule
	for i, f := range fields {
		if i > 2 {
			break
		}
		if r := axialGlide(i, f.plane); r != nil {
			rules = append(rules, r)
		}
		if m := screwMod(f.rot); m != 0 {
			rules = append(rules, serialRule(i, m))
		}
	}
	return rules
}

func tetragonalRules(fields []hmField) []absenceRule {
	var rules []absenceRule

	// Primary field: axis along c, plane perpendicular to c.
	f0 := fields[0]
	if m := screwMod(f0.rot); m != 0 {
		rules = append(rules, serialRule(2, m))
	}
	if r := axialGlide(2, f0.plane); r != nil {
		rules = append(rules, r)
	}

	// Secondary field: planes perpendicular to a and b; the glide letter
	// is read for the a-normal plane and mirrored onto the b-normal one.
	if len(fields) >= 2 {
		f1 := fields[1]
		switch f1.plane {
		case 'b':
			rules = append(rules,
				zoneRule(zoneH0, func(h, k, l int) bool { return odd(k) }),
				zoneRule(zoneK0, func(h, k, l int) bool { return odd(h) }))
		case 'c':
			rules = append(rules,
				zoneRule(zoneH0, func(h, k, l int) bool { return odd(l) }),
				zoneRule(zoneK0, func(h, k, l int) bool { return odd(l) }))
		case 'n':
			rules = append(rules,
				zoneRule(zoneH0, func(h, k, l int) bool { return odd(k + l) }),
				zoneRule(zoneK0, func(h, k, l int) bool { return odd(h + l) }))
		case 'd':
			rules = append(rules,
				zoneRule(zoneH0, func(h, k, l int) bool { return mod(k+l, 4) != 0 }),
				zoneRule(zoneK0, func(h, k, l int) bool { return mod(h+l, 4) != 0 }))
		}
		if m := screwMod(f1.rot); m != 0 {
			rules = append(rules, serialRule(0, m), serialRule(1, m))
		}
	}

	// Tertiary field: planes perpendicular to the [110] star.
	if len(fields) >= 3 {
		rules = append(rules, diagonalGlideRules(fields[2].plane, false)...)
	}
	return rules
}

// diagonalGlideRules covers glide planes perpendicular to <110>
// directions. With cubic true the <011> and <101> pairs are included as
// well, which is how the cubic tertiary position works.
func diagonalGlideRules(letter byte, cubic bool) []absenceRule {
	var rules []absenceRule
	switch letter {
	case 'c', 'n':
		rules = append(rules, zoneRule(zoneHK, func(h, k, l int) bool { return odd(l) }))
		if cubic {
			rules = append(rules,
				zoneRule(zoneKL, func(h, k, l int) bool { return odd(h) }),
				zoneRule(zoneHL, func(h, k, l int) bool { return odd(k) }))
		}
	case 'd':
		rules = append(rules, zoneRule(zoneHK, d4Cond))
		if cubic {
			rules = append(rules,
				zoneRule(zoneKL, d4Cond),
				zoneRule(zoneHL, d4Cond))
		}
	case 'b':
		// Only meaningful in tetragonal symbols such as P-4b2.
		rules = append(rules, zoneRule(zoneHK, func(h, k, l int) bool { return odd(h) }))
	}
	return rules
}

func zoneHK(h, k, l int) bool { return h == k || h == -k }
func zoneKL(h, k, l int) bool { return k == l || k == -l }
func zoneHL(h, k, l int) bool { return h == l || h == -l }

// d4Cond evaluates the quarter-diagonal translation of a d-glide on the
// zone it belongs to. The sum flips sign on the negative member of each
// zone pair so that the translation stays inside the plane.
func d4Cond(h, k, l int) bool {
	v := h + k + l
	switch {
	case h == -k && h != 0:
		v = h - k + l
	case k == -l && k != 0:
		v = h + k - l
	case h == -l && h != 0:
		v = h + k - l
	}
	return mod(v, 4) != 0
}

func hexagonalRules(fields []hmField) []absenceRule {
	var rules []absenceRule

	f0 := fields[0]
	if m := screwMod(f0.rot); m != 0 {
		rules = append(rules, serialRule(2, m))
	}

	// Secondary field: planes perpendicular to the a-axes; only c-glides
	// occur in the hexagonal family.
	if len(fields) >= 2 && fields[1].plane == 'c' {
		rules = append(rules,
			zoneRule(zoneH0, func(h, k, l int) bool { return odd(l) }),
			zoneRule(zoneK0, func(h, k, l int) bool { return odd(l) }),
			zoneRule(func(h, k, l int) bool { return h+k == 0 }, func(h, k, l int) bool { return odd(l) }))
	}

	// Tertiary field: planes perpendicular to the a-b star.
	if len(fields) >= 3 && fields[2].plane == 'c' {
		rules = append(rules,
			zoneRule(func(h, k, l int) bool { return h == k }, func(h, k, l int) bool { return odd(l) }),
			zoneRule(func(h, k, l int) bool { return k == -2*h }, func(h, k, l int) bool { return odd(l) }),
			zoneRule(func(h, k, l int) bool { return h == -2*k }, func(h, k, l int) bool { return odd(l) }))
	}
	return rules
}

func cubicRules(fields []hmField) []absenceRule {
	var rules []absenceRule

	// Primary field: planes perpendicular to all three axes; screws run
	// along all three axes.
	f0 := fields[0]
	if m := screwMod(f0.rot); m != 0 {
		rules = append(rules, serialRule(0, m), serialRule(1, m), serialRule(2, m))
	}
	switch f0.plane {
	case 'a':
		// The glide letter cycles with the normal, as in Pa-3.
		rules = append(rules,
			zoneRule(zoneH0, func(h, k, l int) bool { return odd(k) }),
			zoneRule(zoneK0, func(h, k, l int) bool { return odd(l) }),
			zoneRule(zoneL0, func(h, k, l int) bool { return odd(h) }))
	case 'b':
		rules = append(rules,
			zoneRule(zoneH0, func(h, k, l int) bool { return odd(l) }),
			zoneRule(zoneK0, func(h, k, l int) bool { return odd(h) }),
			zoneRule(zoneL0, func(h, k, l int) bool { return odd(k) }))
	case 'n':
		rules = append(rules,
			zoneRule(zoneH0, func(h, k, l int) bool { return odd(k + l) }),
			zoneRule(zoneK0, func(h, k, l int) bool { return odd(h + l) }),
			zoneRule(zoneL0, func(h, k, l int) bool { return odd(h + k) }))
	case 'd':
		rules = append(rules,
			zoneRule(zoneH0, func(h, k, l int) bool { return mod(k+l, 4) != 0 }),
			zoneRule(zoneK0, func(h, k, l int) bool { return mod(h+l, 4) != 0 }),
			zoneRule(zoneL0, func(h, k, l int) bool { return mod(h+k, 4) != 0 }))
	}

	// Tertiary field: the six <110> planes.
	if len(fields) >= 3 {
		rules = append(rules, diagonalGlideRules(fields[2].plane, true)...)
	}
	return rules
}
