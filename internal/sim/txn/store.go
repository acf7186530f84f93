package txn

import "sort"

// Store holds per-owner reservations keyed by transaction id.
// Accessed only from the world loop goroutine.
type Store struct {
	byOwner map[string]map[string]*Transaction
	nextSeq uint64
}

func NewStore() *Store {
	return &Store{byOwner: map[string]map[string]*Transaction{}}
}

func (s *Store) Put(t *Transaction) {
	owner := s.byOwner[t.OwnerID]
	if owner == nil {
		owner = map[string]*Transaction{}
		s.byOwner[t.OwnerID] = owner
	}
	s.nextSeq++
	t.seq = s.nextSeq
	owner[t.ID] = t
}

func (s *Store) Get(ownerID, id string) *Transaction {
	return s.byOwner[ownerID][id]
}

// LockedTotal sums the pending locks for one item across an owner's
// reservations. Committed and rolled-back transactions hold no locks.
func (s *Store) LockedTotal(ownerID, item string) int {
	total := 0
	for _, t := range s.byOwner[ownerID] {
		if t.State != StatePending {
			continue
		}
		total += t.Locked[item]
	}
	return total
}

// MostRecentPendingOfType supports the rollback-by-type fallback path. Racy
// by design when multiple same-type reservations are pending; see the
// manager's Rollback doc.
func (s *Store) MostRecentPendingOfType(ownerID string, typ Type) *Transaction {
	var best *Transaction
	for _, t := range s.byOwner[ownerID] {
		if t.State != StatePending || t.Type != typ {
			continue
		}
		if best == nil || t.seq > best.seq {
			best = t
		}
	}
	return best
}

// PendingForOwner returns pending reservations ordered by creation.
func (s *Store) PendingForOwner(ownerID string) []*Transaction {
	var out []*Transaction
	for _, t := range s.byOwner[ownerID] {
		if t.State == StatePending {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Expired returns pending reservations older than ttlTicks, ordered by
// creation.
func (s *Store) Expired(nowTick uint64, ttlTicks int) []*Transaction {
	if ttlTicks <= 0 {
		return nil
	}
	var out []*Transaction
	for _, owner := range s.byOwner {
		for _, t := range owner {
			if t.State != StatePending {
				continue
			}
			if nowTick >= t.CreatedTick && nowTick-t.CreatedTick >= uint64(ttlTicks) {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// DropTerminalOlderThan garbage-collects committed/rolled-back records older
// than ttlTicks. They are retained that long so repeat Commit/Rollback calls
// stay recognizable no-ops.
func (s *Store) DropTerminalOlderThan(nowTick uint64, ttlTicks int) int {
	if ttlTicks <= 0 {
		return 0
	}
	n := 0
	for ownerID, owner := range s.byOwner {
		for id, t := range owner {
			if t.State == StatePending {
				continue
			}
			if nowTick >= t.CreatedTick && nowTick-t.CreatedTick >= uint64(ttlTicks) {
				delete(owner, id)
				n++
			}
		}
		if len(owner) == 0 {
			delete(s.byOwner, ownerID)
		}
	}
	return n
}
