package txn

import (
	"sort"

	"github.com/google/uuid"

	"spatialrefuge.dev/internal/sim/ledger"
)

// AuditFn receives one entry per transaction state change. May be nil.
type AuditFn func(AuditEntry)

// Manager provides atomic-looking reserve/consume semantics over the async
// request/response boundary. Begin locks items against the owner's true
// availability minus already-pending locks; Commit deducts from the real
// sources; Rollback releases the lock. All calls happen on the world loop
// goroutine.
type Manager struct {
	ledger   *ledger.Ledger
	store    *Store
	resolver ledger.SourceResolver
	audit    AuditFn
	ttlTicks int
}

func NewManager(led *ledger.Ledger, store *Store, resolver ledger.SourceResolver, ttlTicks int, audit AuditFn) *Manager {
	return &Manager{
		ledger:   led,
		store:    store,
		resolver: resolver,
		audit:    audit,
		ttlTicks: ttlTicks,
	}
}

func (m *Manager) Store() *Store { return m.store }

func (m *Manager) emit(e AuditEntry) {
	if m.audit != nil {
		m.audit(e)
	}
}

// Begin reserves exact per-type costs. Locking is additive across concurrent
// Begin calls for the same owner: two in-flight purchases compete for the
// same pool.
func (m *Manager) Begin(ownerID string, typ Type, costs map[string]int, nowTick uint64) (*Transaction, error) {
	items := make([]string, 0, len(costs))
	for item, n := range costs {
		if n <= 0 {
			continue
		}
		items = append(items, item)
	}
	sort.Strings(items)

	for _, item := range items {
		free := m.ledger.Available(ownerID, item) - m.store.LockedTotal(ownerID, item)
		if free < costs[item] {
			return nil, ErrInsufficientResources
		}
	}

	locked := make(map[string]int, len(items))
	for _, item := range items {
		locked[item] = costs[item]
	}
	t := &Transaction{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Type:        typ,
		Locked:      locked,
		State:       StatePending,
		CreatedTick: nowTick,
	}
	m.store.Put(t)
	m.emit(AuditEntry{Tick: nowTick, Owner: ownerID, TxnID: t.ID, Type: string(typ), Action: "BEGIN", Items: locked})
	return t, nil
}

// BeginWithSubstitutions resolves each requirement to a concrete per-type
// allocation before locking: the primary type is exhausted first, then
// substitutes ordered by highest free count, ties broken by declaration
// order. The same inventory snapshot therefore always yields the same lock.
func (m *Manager) BeginWithSubstitutions(ownerID string, typ Type, reqs []ledger.Requirement, nowTick uint64) (*Transaction, error) {
	costs := map[string]int{}

	free := func(item string) int {
		return m.ledger.Available(ownerID, item) - m.store.LockedTotal(ownerID, item) - costs[item]
	}

	for _, req := range reqs {
		need := req.Count
		if need <= 0 {
			continue
		}

		take := func(item string) {
			n := free(item)
			if n <= 0 {
				return
			}
			if n > need {
				n = need
			}
			costs[item] += n
			need -= n
		}

		take(req.Item)
		if need > 0 {
			subs := make([]string, 0, len(req.Substitutes))
			seen := map[string]bool{req.Item: true}
			for _, s := range req.Substitutes {
				if seen[s] {
					continue
				}
				seen[s] = true
				subs = append(subs, s)
			}
			declOrder := make(map[string]int, len(subs))
			for i, s := range subs {
				declOrder[s] = i
			}
			sort.SliceStable(subs, func(i, j int) bool {
				fi, fj := free(subs[i]), free(subs[j])
				if fi != fj {
					return fi > fj
				}
				return declOrder[subs[i]] < declOrder[subs[j]]
			})
			for _, s := range subs {
				if need == 0 {
					break
				}
				take(s)
			}
		}
		if need > 0 {
			return nil, ErrInsufficientResources
		}
	}

	return m.Begin(ownerID, typ, costs, nowTick)
}

// Commit transitions Pending -> Committed and deducts the locked allocation
// from the owner's real sources, personal inventory first. Idempotent:
// repeat commits and commits of unknown or rolled-back ids return false
// without touching inventory.
func (m *Manager) Commit(ownerID, id string, nowTick uint64) bool {
	t := m.store.Get(ownerID, id)
	if t == nil || t.State != StatePending {
		return false
	}

	items := make([]string, 0, len(t.Locked))
	for item := range t.Locked {
		items = append(items, item)
	}
	sort.Strings(items)

	sources := m.resolver.Sources(ownerID)
	for _, item := range items {
		remaining := t.Locked[item]
		for _, src := range sources {
			if remaining == 0 {
				break
			}
			remaining -= src.Remove(item, remaining)
		}
		// The lock guaranteed availability at Begin time and every later
		// Begin observed it, so remaining is zero here unless a source was
		// mutated outside the transaction engine.
	}

	t.State = StateCommitted
	m.emit(AuditEntry{Tick: nowTick, Owner: ownerID, TxnID: id, Type: string(t.Type), Action: "COMMIT", Items: t.Locked})
	return true
}

// Rollback transitions Pending -> RolledBack and releases the lock. When id
// is empty (a response that lost its transaction id), it falls back to the
// single most-recent pending reservation of fallbackType — an accepted race
// when several same-type reservations are pending simultaneously.
func (m *Manager) Rollback(ownerID, id string, fallbackType Type, nowTick uint64) bool {
	var t *Transaction
	note := ""
	if id != "" {
		t = m.store.Get(ownerID, id)
	} else {
		t = m.store.MostRecentPendingOfType(ownerID, fallbackType)
		note = "fallback-by-type"
	}
	if t == nil || t.State != StatePending {
		return false
	}
	t.State = StateRolledBack
	m.emit(AuditEntry{Tick: nowTick, Owner: ownerID, TxnID: t.ID, Type: string(t.Type), Action: "ROLLBACK", Items: t.Locked, Note: note})
	return true
}

// SweepExpired force-rolls-back pending reservations past the TTL, so a lost
// network response never locks items forever. Terminal records past the same
// age are garbage-collected. Called once per tick.
func (m *Manager) SweepExpired(nowTick uint64) int {
	n := 0
	for _, t := range m.store.Expired(nowTick, m.ttlTicks) {
		t.State = StateRolledBack
		m.emit(AuditEntry{Tick: nowTick, Owner: t.OwnerID, TxnID: t.ID, Type: string(t.Type), Action: "EXPIRE", Items: t.Locked})
		n++
	}
	m.store.DropTerminalOlderThan(nowTick, 2*m.ttlTicks)
	return n
}
