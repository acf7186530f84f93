package txn

import (
	"testing"

	"spatialrefuge.dev/internal/sim/ledger"
)

func newTestManager(inv map[string]int, ttl int) (*Manager, *ledger.MapSource, *[]AuditEntry) {
	src := ledger.NewMapSource("inventory", inv)
	resolver := ledger.FuncResolver(func(string) []ledger.ItemSource {
		return []ledger.ItemSource{src}
	})
	var audit []AuditEntry
	m := NewManager(ledger.New(resolver), NewStore(), resolver, ttl, func(e AuditEntry) {
		audit = append(audit, e)
	})
	return m, src, &audit
}

func TestBegin_LocksAgainstFreeCount(t *testing.T) {
	m, _, _ := newTestManager(map[string]int{"PLANK": 10}, 100)

	t1, err := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 6}, 1)
	if err != nil {
		t.Fatalf("begin 1: %v", err)
	}
	if t1.State != StatePending {
		t.Fatalf("state=%v want pending", t1.State)
	}

	// 10 total, 6 locked: a second 6 must fail, a 4 must succeed.
	if _, err := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 6}, 2); err != ErrInsufficientResources {
		t.Fatalf("overlapping begin: err=%v want ErrInsufficientResources", err)
	}
	if _, err := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 4}, 2); err != nil {
		t.Fatalf("begin 2: %v", err)
	}
}

func TestCommit_DeductsOnceAndIsIdempotent(t *testing.T) {
	m, src, _ := newTestManager(map[string]int{"PLANK": 10}, 100)

	tx, err := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 6}, 1)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	// Reservation must not touch the source.
	if src.Items["PLANK"] != 10 {
		t.Fatalf("inventory touched by begin: %v", src.Items)
	}

	if !m.Commit("o1", tx.ID, 2) {
		t.Fatalf("commit rejected")
	}
	if src.Items["PLANK"] != 4 {
		t.Fatalf("after commit PLANK=%d want 4", src.Items["PLANK"])
	}

	// Repeat commit is a no-op.
	if m.Commit("o1", tx.ID, 3) {
		t.Fatalf("repeat commit accepted")
	}
	if src.Items["PLANK"] != 4 {
		t.Fatalf("repeat commit deducted again: %v", src.Items)
	}

	// Commit of an unknown id is a no-op.
	if m.Commit("o1", "nope", 3) {
		t.Fatalf("unknown commit accepted")
	}
}

func TestRollback_RestoresAvailability(t *testing.T) {
	m, _, _ := newTestManager(map[string]int{"PLANK": 10}, 100)

	tx, err := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 10}, 1)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 1}, 1); err == nil {
		t.Fatalf("expected everything locked")
	}

	if !m.Rollback("o1", tx.ID, TypeFeatureUpgrade, 2) {
		t.Fatalf("rollback rejected")
	}
	if _, err := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 10}, 3); err != nil {
		t.Fatalf("begin after rollback: %v", err)
	}

	// Committing a rolled-back reservation must stay rejected.
	if m.Commit("o1", tx.ID, 4) {
		t.Fatalf("commit of rolled-back txn accepted")
	}
}

func TestRollback_FallbackByType(t *testing.T) {
	m, _, audit := newTestManager(map[string]int{"PLANK": 10}, 100)

	t1, _ := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 2}, 1)
	t2, _ := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 2}, 2)
	_, _ = m.Begin("o1", TypeUpgrade, map[string]int{"PLANK": 2}, 3)

	// Empty id: the most recent pending FEATURE_UPGRADE goes, not the UPGRADE.
	if !m.Rollback("o1", "", TypeFeatureUpgrade, 4) {
		t.Fatalf("fallback rollback rejected")
	}
	if t2.State != StateRolledBack {
		t.Fatalf("t2 state=%v want rolled back", t2.State)
	}
	if t1.State != StatePending {
		t.Fatalf("t1 state=%v want pending", t1.State)
	}

	last := (*audit)[len(*audit)-1]
	if last.Action != "ROLLBACK" || last.Note != "fallback-by-type" {
		t.Fatalf("audit entry %#v", last)
	}
}

func TestBeginWithSubstitutions_PrimaryFirstThenHighestFree(t *testing.T) {
	// 3 primary, 5 of one substitute, 2 of another; need 6.
	m, _, _ := newTestManager(map[string]int{
		"PLANK":      3,
		"SCRAP_WOOD": 5,
		"LOG":        2,
	}, 100)

	reqs := []ledger.Requirement{{Item: "PLANK", Substitutes: []string{"LOG", "SCRAP_WOOD"}, Count: 6}}
	tx, err := m.BeginWithSubstitutions("o1", TypeFeatureUpgrade, reqs, 1)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	// Primary exhausted first; remainder from the substitute with the highest
	// free count regardless of declaration order.
	want := map[string]int{"PLANK": 3, "SCRAP_WOOD": 3}
	if len(tx.Locked) != len(want) {
		t.Fatalf("locked=%#v want %#v", tx.Locked, want)
	}
	for k, v := range want {
		if tx.Locked[k] != v {
			t.Fatalf("locked=%#v want %#v", tx.Locked, want)
		}
	}
}

func TestBeginWithSubstitutions_DeclarationOrderBreaksTies(t *testing.T) {
	m, _, _ := newTestManager(map[string]int{
		"PLANK":      0,
		"SCRAP_WOOD": 4,
		"LOG":        4,
	}, 100)

	reqs := []ledger.Requirement{{Item: "PLANK", Substitutes: []string{"LOG", "SCRAP_WOOD"}, Count: 4}}
	tx, err := m.BeginWithSubstitutions("o1", TypeFeatureUpgrade, reqs, 1)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if tx.Locked["LOG"] != 4 || tx.Locked["SCRAP_WOOD"] != 0 {
		t.Fatalf("locked=%#v want all from LOG (declared first)", tx.Locked)
	}
}

func TestBeginWithSubstitutions_ShortfallLocksNothing(t *testing.T) {
	m, _, _ := newTestManager(map[string]int{"PLANK": 2, "LOG": 1}, 100)

	reqs := []ledger.Requirement{{Item: "PLANK", Substitutes: []string{"LOG"}, Count: 6}}
	if _, err := m.BeginWithSubstitutions("o1", TypeFeatureUpgrade, reqs, 1); err != ErrInsufficientResources {
		t.Fatalf("err=%v want ErrInsufficientResources", err)
	}
	// No partial lock may remain.
	if got := m.Store().LockedTotal("o1", "PLANK"); got != 0 {
		t.Fatalf("PLANK locked=%d want 0", got)
	}
	if got := m.Store().LockedTotal("o1", "LOG"); got != 0 {
		t.Fatalf("LOG locked=%d want 0", got)
	}
}

func TestBeginWithSubstitutions_SeesOtherPendingLocks(t *testing.T) {
	m, _, _ := newTestManager(map[string]int{"PLANK": 10}, 100)

	if _, err := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 6}, 1); err != nil {
		t.Fatalf("begin 1: %v", err)
	}
	reqs := []ledger.Requirement{{Item: "PLANK", Count: 6}}
	if _, err := m.BeginWithSubstitutions("o1", TypeFeatureUpgrade, reqs, 2); err != ErrInsufficientResources {
		t.Fatalf("double-spend not prevented: err=%v", err)
	}
}

func TestSweepExpired_UnlocksAndAudits(t *testing.T) {
	m, _, audit := newTestManager(map[string]int{"PLANK": 10}, 50)

	tx, err := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 10}, 1)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if n := m.SweepExpired(40); n != 0 {
		t.Fatalf("early sweep expired %d", n)
	}
	if n := m.SweepExpired(51); n != 1 {
		t.Fatalf("sweep expired %d want 1", n)
	}
	if tx.State != StateRolledBack {
		t.Fatalf("state=%v want rolled back", tx.State)
	}
	if _, err := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 10}, 52); err != nil {
		t.Fatalf("begin after expiry: %v", err)
	}

	found := false
	for _, e := range *audit {
		if e.Action == "EXPIRE" && e.TxnID == tx.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing EXPIRE audit entry: %#v", *audit)
	}
}

func TestSweepExpired_DropsOldTerminalRecords(t *testing.T) {
	m, _, _ := newTestManager(map[string]int{"PLANK": 10}, 50)

	tx, _ := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 2}, 1)
	m.Commit("o1", tx.ID, 2)

	// Still recognizable until 2*ttl.
	m.SweepExpired(60)
	if m.Store().Get("o1", tx.ID) == nil {
		t.Fatalf("terminal record dropped too early")
	}
	m.SweepExpired(200)
	if m.Store().Get("o1", tx.ID) != nil {
		t.Fatalf("terminal record not garbage collected")
	}
}

func TestCommit_DeductsAcrossSourcesInOrder(t *testing.T) {
	inv := ledger.NewMapSource("inventory", map[string]int{"PLANK": 3})
	storage := ledger.NewMapSource("relic", map[string]int{"PLANK": 5})
	resolver := ledger.FuncResolver(func(string) []ledger.ItemSource {
		return []ledger.ItemSource{inv, storage}
	})
	m := NewManager(ledger.New(resolver), NewStore(), resolver, 100, nil)

	tx, err := m.Begin("o1", TypeFeatureUpgrade, map[string]int{"PLANK": 6}, 1)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !m.Commit("o1", tx.ID, 2) {
		t.Fatalf("commit rejected")
	}
	// Personal inventory drained first, remainder from storage.
	if inv.Items["PLANK"] != 0 {
		t.Fatalf("inventory=%v want empty", inv.Items)
	}
	if storage.Items["PLANK"] != 2 {
		t.Fatalf("storage PLANK=%d want 2", storage.Items["PLANK"])
	}
}
