package region

// Placement walks an outward square spiral on a fixed lattice. Each slot is
// spaced by the maximum possible region footprint plus a safety margin, so
// two regions can never overlap regardless of how far either expands.
type Placement struct {
	// Step is the lattice pitch in world units: 2*maxHalfSize + margin.
	Step    int
	OriginY int
}

// CoordsFor maps a monotonically increasing allocation index to lattice
// coordinates. Index 0 is the origin; subsequent indices spiral outward.
func (p Placement) CoordsFor(index int) Vec3i {
	x, z := spiral(index)
	return Vec3i{X: x * p.Step, Y: p.OriginY, Z: z * p.Step}
}

// spiral maps n to the n-th cell of an outward square spiral starting at
// (0,0), heading +X, turning counter-clockwise.
func spiral(n int) (x, z int) {
	if n <= 0 {
		return 0, 0
	}
	// Ring k holds cells (2k-1)^2 .. (2k+1)^2 - 1.
	k := 0
	for (2*k+1)*(2*k+1) <= n {
		k++
	}
	ringStart := (2*k - 1) * (2*k - 1)
	offset := n - ringStart
	side := 2 * k // cells per side

	switch offset / side {
	case 0: // right edge, going up
		return k, -k + 1 + offset%side
	case 1: // top edge, going left
		return k - 1 - offset%side, k
	case 2: // left edge, going down
		return -k, k - 1 - offset%side
	default: // bottom edge, going right
		return -k + 1 + offset%side, -k
	}
}
