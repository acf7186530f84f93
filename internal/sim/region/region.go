package region

import "sort"

// Vec3i is duplicated here to avoid import cycles (region is used by world).
type Vec3i struct{ X, Y, Z int }

// Region is one owner's claimed refuge. SizeTier only grows (never shrinks
// outside a deliberate reset); geometry never overlaps another non-orphaned
// region (allocator invariant).
type Region struct {
	ID       string
	Owner    string
	Center   Vec3i
	SizeTier int

	UpgradeLevels map[string]int

	// RelicPos is recorded the first time the anchor object is created and
	// updated when the player relocates it. Nil until first placement.
	RelicPos *Vec3i

	BoundaryPresent bool
	StructureIDs    map[int]bool

	// Orphaned regions belong to a permanently-gone identity and are
	// eligible for adoption by the next owner (single-tenant policy).
	Orphaned      bool
	InheritedFrom string

	// AllocIndex is the placement slot on the global lattice.
	AllocIndex int
}

func (r *Region) Level(upgradeID string) int {
	return r.UpgradeLevels[upgradeID]
}

func (r *Region) SetLevel(upgradeID string, level int) {
	if r.UpgradeLevels == nil {
		r.UpgradeLevels = map[string]int{}
	}
	r.UpgradeLevels[upgradeID] = level
}

// Contains reports whether pos falls inside the region footprint at the
// given half-size (square, XZ plane).
func (r *Region) Contains(pos Vec3i, halfSize int) bool {
	dx := pos.X - r.Center.X
	if dx < 0 {
		dx = -dx
	}
	dz := pos.Z - r.Center.Z
	if dz < 0 {
		dz = -dz
	}
	return dx <= halfSize && dz <= halfSize
}

// Overlaps reports whether two square footprints (including buffer) touch.
func Overlaps(aCenter Vec3i, aHalf int, bCenter Vec3i, bHalf int) bool {
	dx := aCenter.X - bCenter.X
	if dx < 0 {
		dx = -dx
	}
	dz := aCenter.Z - bCenter.Z
	if dz < 0 {
		dz = -dz
	}
	return dx <= aHalf+bHalf && dz <= aHalf+bHalf
}

func (r *Region) StructureIDList() []int {
	if len(r.StructureIDs) == 0 {
		return nil
	}
	out := make([]int, 0, len(r.StructureIDs))
	for id := range r.StructureIDs {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (r *Region) AddStructure(id int) {
	if r.StructureIDs == nil {
		r.StructureIDs = map[int]bool{}
	}
	r.StructureIDs[id] = true
}
