package world

import "spatialrefuge.dev/internal/sim/region"

// Vec3i aliases the region coordinate type; the world and its stores share
// one coordinate space.
type Vec3i = region.Vec3i

func Manhattan(a, b Vec3i) int {
	return absInt(a.X-b.X) + absInt(a.Y-b.Y) + absInt(a.Z-b.Z)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}
