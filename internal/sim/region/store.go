package region

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Backend persists the owner -> region registry plus the allocator cursor.
// The sqlite implementation lives in persistence/indexdb; tests substitute an
// in-memory fake.
type Backend interface {
	LoadRegions() ([]*Region, error)
	LoadCursor() (int, error)
	UpsertRegion(*Region) error
	DeleteRegion(id string) error
	SaveCursor(int) error
}

// Store is the single source of truth for claimed regions.
// Accessed only from the world loop goroutine.
type Store struct {
	placement Placement

	byOwner map[string]*Region
	byID    map[string]*Region
	cursor  int

	backend Backend
}

func NewStore(placement Placement, backend Backend) (*Store, error) {
	s := &Store{
		placement: placement,
		byOwner:   map[string]*Region{},
		byID:      map[string]*Region{},
		backend:   backend,
	}
	regions, err := backend.LoadRegions()
	if err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}
	for _, r := range regions {
		s.byID[r.ID] = r
		if !r.Orphaned && r.Owner != "" {
			s.byOwner[r.Owner] = r
		}
	}
	cursor, err := backend.LoadCursor()
	if err != nil {
		return nil, fmt.Errorf("load allocator cursor: %w", err)
	}
	s.cursor = cursor
	return s, nil
}

func (s *Store) Get(ownerID string) *Region {
	return s.byOwner[ownerID]
}

func (s *Store) ByID(id string) *Region {
	return s.byID[id]
}

// All returns every region, orphaned included, ordered by allocation slot.
func (s *Store) All() []*Region {
	out := make([]*Region, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AllocIndex < out[j].AllocIndex })
	return out
}

// AllocateCoordinates consumes the next lattice slot. Slots are never
// reused while a non-orphaned region still references them, which the
// monotone cursor guarantees by construction.
func (s *Store) AllocateCoordinates() (Vec3i, int, error) {
	idx := s.cursor
	pos := s.placement.CoordsFor(idx)
	s.cursor++
	if err := s.backend.SaveCursor(s.cursor); err != nil {
		s.cursor = idx
		return Vec3i{}, 0, fmt.Errorf("save allocator cursor: %w", err)
	}
	return pos, idx, nil
}

// GetOrCreate returns the owner's region, adopting an orphaned one when the
// single-tenant policy allows, or allocating a fresh placement otherwise.
// created is true when this call claimed a region (fresh or adopted) for the
// owner. InheritedFrom is set only on the call that performs the adoption so
// the caller can notify the player exactly once.
func (s *Store) GetOrCreate(ownerID string) (r *Region, created bool, err error) {
	if r := s.byOwner[ownerID]; r != nil {
		return r, false, nil
	}

	if orphan := s.oldestOrphan(); orphan != nil {
		prev := orphan.Owner
		orphan.Owner = ownerID
		orphan.Orphaned = false
		orphan.InheritedFrom = prev
		s.byOwner[ownerID] = orphan
		if err := s.backend.UpsertRegion(orphan); err != nil {
			return nil, false, fmt.Errorf("persist adopted region: %w", err)
		}
		return orphan, true, nil
	}

	center, idx, err := s.AllocateCoordinates()
	if err != nil {
		return nil, false, err
	}
	r = &Region{
		ID:         uuid.NewString(),
		Owner:      ownerID,
		Center:     center,
		AllocIndex: idx,
	}
	s.byOwner[ownerID] = r
	s.byID[r.ID] = r
	if err := s.backend.UpsertRegion(r); err != nil {
		return nil, false, fmt.Errorf("persist region: %w", err)
	}
	return r, true, nil
}

func (s *Store) oldestOrphan() *Region {
	var best *Region
	for _, r := range s.byID {
		if !r.Orphaned {
			continue
		}
		if best == nil || r.AllocIndex < best.AllocIndex {
			best = r
		}
	}
	return best
}

// Save persists mutations made by the upgrade engine or the construction
// scheduler (tier changes, structure ids, relic position).
func (s *Store) Save(r *Region) error {
	return s.backend.UpsertRegion(r)
}

// MarkOrphaned flags the owner's region for adoption by a successor
// identity. The record survives; only the ownership link is severed.
func (s *Store) MarkOrphaned(ownerID string) error {
	r := s.byOwner[ownerID]
	if r == nil {
		return nil
	}
	r.Orphaned = true
	delete(s.byOwner, ownerID)
	return s.backend.UpsertRegion(r)
}

// Delete removes the logical record only; physical structures are
// deliberately left in the world so re-entry and inheritance stay correct.
func (s *Store) Delete(ownerID string) error {
	r := s.byOwner[ownerID]
	if r == nil {
		return nil
	}
	delete(s.byOwner, ownerID)
	delete(s.byID, r.ID)
	return s.backend.DeleteRegion(r.ID)
}
