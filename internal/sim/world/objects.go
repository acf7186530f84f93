package world

import "sort"

// Kind is the explicit object-kind tag. Every protection or clearing
// decision goes through Classification below — no call site probes object
// shapes ad hoc.
type Kind int

const (
	KindBoundary Kind = iota
	KindRelic
	KindHazard
	KindCorpse
	KindVegetation
)

func (k Kind) String() string {
	switch k {
	case KindBoundary:
		return "BOUNDARY"
	case KindRelic:
		return "RELIC"
	case KindHazard:
		return "HAZARD"
	case KindCorpse:
		return "CORPSE"
	case KindVegetation:
		return "VEGETATION"
	default:
		return "UNKNOWN"
	}
}

// Class partitions kinds by how the refuge machinery treats them.
type Class int

const (
	// ClassProtected objects are indestructible and never cleared.
	ClassProtected Class = iota
	// ClassClearable objects are removed when a footprint is prepared.
	ClassClearable
)

// Classification is the single source of truth consulted everywhere
// protection is enforced.
func Classification(k Kind) Class {
	switch k {
	case KindBoundary, KindRelic:
		return ClassProtected
	default:
		return ClassClearable
	}
}

type Object struct {
	ID   int
	Kind Kind
	Pos  Vec3i

	// Storage is non-nil only for the relic (its container is an item
	// source for the resource ledger).
	Storage map[string]int
}

// ObjectStore holds physical structures and incidental entities.
// Accessed only from the world loop goroutine.
type ObjectStore struct {
	nextID int
	byID   map[int]*Object
	byPos  map[Vec3i]map[int]*Object
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		byID:  map[int]*Object{},
		byPos: map[Vec3i]map[int]*Object{},
	}
}

func (s *ObjectStore) Get(id int) *Object { return s.byID[id] }

func (s *ObjectStore) Spawn(kind Kind, pos Vec3i) *Object {
	s.nextID++
	o := &Object{ID: s.nextID, Kind: kind, Pos: pos}
	if kind == KindRelic {
		o.Storage = map[string]int{}
	}
	s.byID[o.ID] = o
	s.index(o)
	return o
}

func (s *ObjectStore) index(o *Object) {
	cell := s.byPos[o.Pos]
	if cell == nil {
		cell = map[int]*Object{}
		s.byPos[o.Pos] = cell
	}
	cell[o.ID] = o
}

func (s *ObjectStore) unindex(o *Object) {
	cell := s.byPos[o.Pos]
	delete(cell, o.ID)
	if len(cell) == 0 {
		delete(s.byPos, o.Pos)
	}
}

func (s *ObjectStore) Move(id int, pos Vec3i) bool {
	o := s.byID[id]
	if o == nil {
		return false
	}
	s.unindex(o)
	o.Pos = pos
	s.index(o)
	return true
}

func (s *ObjectStore) Remove(id int) bool {
	o := s.byID[id]
	if o == nil {
		return false
	}
	s.unindex(o)
	delete(s.byID, id)
	return true
}

func inArea(pos, min, max Vec3i) bool {
	return pos.X >= min.X && pos.X <= max.X && pos.Z >= min.Z && pos.Z <= max.Z
}

// InArea returns objects inside [min,max], ordered by id for determinism.
func (s *ObjectStore) InArea(min, max Vec3i) []*Object {
	var out []*Object
	for _, o := range s.byID {
		if inArea(o.Pos, min, max) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClearArea removes every clearable object from [min,max] and reports the
// count. Protected objects are untouched; already-clear areas return 0.
func (s *ObjectStore) ClearArea(min, max Vec3i) int {
	n := 0
	for _, o := range s.InArea(min, max) {
		if Classification(o.Kind) != ClassClearable {
			continue
		}
		s.Remove(o.ID)
		n++
	}
	return n
}

// perimeterCells visits every cell on the exact perimeter of [min,max].
func perimeterCells(min, max Vec3i, visit func(Vec3i)) {
	y := min.Y
	for x := min.X; x <= max.X; x++ {
		visit(Vec3i{X: x, Y: y, Z: min.Z})
		if max.Z != min.Z {
			visit(Vec3i{X: x, Y: y, Z: max.Z})
		}
	}
	for z := min.Z + 1; z <= max.Z-1; z++ {
		visit(Vec3i{X: min.X, Y: y, Z: z})
		if max.X != min.X {
			visit(Vec3i{X: max.X, Y: y, Z: z})
		}
	}
}

func (s *ObjectStore) boundaryAt(pos Vec3i) bool {
	for _, o := range s.byPos[pos] {
		if o.Kind == KindBoundary {
			return true
		}
	}
	return false
}

// BoundaryIntact reports whether every perimeter cell of [min,max] already
// carries a boundary structure.
func (s *ObjectStore) BoundaryIntact(min, max Vec3i) bool {
	intact := true
	perimeterCells(min, max, func(p Vec3i) {
		if !s.boundaryAt(p) {
			intact = false
		}
	})
	return intact
}

// BuildBoundary creates boundary structures on every perimeter cell that
// lacks one and returns the new ids. Re-running against an intact boundary
// creates nothing.
func (s *ObjectStore) BuildBoundary(min, max Vec3i) []int {
	var ids []int
	perimeterCells(min, max, func(p Vec3i) {
		if s.boundaryAt(p) {
			return
		}
		ids = append(ids, s.Spawn(KindBoundary, p).ID)
	})
	return ids
}

// FindRelic searches the full square around center; the relic may have been
// relocated to any corner in a prior session. Lowest id wins if the world
// somehow holds more than one.
func (s *ObjectStore) FindRelic(center Vec3i, halfSize int) (*Object, bool) {
	min := Vec3i{X: center.X - halfSize, Y: center.Y, Z: center.Z - halfSize}
	max := Vec3i{X: center.X + halfSize, Y: center.Y, Z: center.Z + halfSize}
	for _, o := range s.InArea(min, max) {
		if o.Kind == KindRelic {
			return o, true
		}
	}
	return nil, false
}
