package upgrade

import (
	"spatialrefuge.dev/internal/protocol"
	"spatialrefuge.dev/internal/sim/region"
	"spatialrefuge.dev/internal/sim/txn"
)

type CastKind int

const (
	CastEnter CastKind = iota
	CastExit
)

func (k CastKind) String() string {
	if k == CastExit {
		return "EXIT"
	}
	return "ENTER"
}

// CastAction is a deferred enter/exit: the owner must hold still for
// CastTicks. Moving or taking an interrupting action cancels it, and
// cancellation must leave no partial reservation behind.
type CastAction struct {
	Kind      CastKind
	OwnerID   string
	StartTick uint64
	CastTicks int
	StartPos  region.Vec3i
	ReturnPos region.Vec3i
	TxnID     string
	TxnType   txn.Type
}

// EntryEngine tracks at most one in-flight cast action per owner.
// Accessed only from the world loop goroutine.
type EntryEngine struct {
	txns   *txn.Manager
	casts  map[string]*CastAction
}

func NewEntryEngine(txns *txn.Manager) *EntryEngine {
	return &EntryEngine{txns: txns, casts: map[string]*CastAction{}}
}

func (e *EntryEngine) Active(ownerID string) *CastAction {
	return e.casts[ownerID]
}

// BeginEnter starts the entry cast, reserving entryCosts up front (may be
// empty). Fails with E_BUSY when a cast is already in flight and
// E_NO_RESOURCE when the reservation cannot be made.
func (e *EntryEngine) BeginEnter(ownerID string, pos, returnPos region.Vec3i, castTicks int, entryCosts map[string]int, nowTick uint64) (*CastAction, string) {
	if e.casts[ownerID] != nil {
		return nil, protocol.ErrBusy
	}
	txnID := ""
	txnType := txn.TypeUpgrade
	if len(entryCosts) > 0 {
		t, err := e.txns.Begin(ownerID, txnType, entryCosts, nowTick)
		if err != nil {
			return nil, protocol.ErrNoResource
		}
		txnID = t.ID
	}
	c := &CastAction{
		Kind:      CastEnter,
		OwnerID:   ownerID,
		StartTick: nowTick,
		CastTicks: castTicks,
		StartPos:  pos,
		ReturnPos: returnPos,
		TxnID:     txnID,
		TxnType:   txnType,
	}
	e.casts[ownerID] = c
	return c, ""
}

// BeginExit starts the exit cast. Exiting never costs items.
func (e *EntryEngine) BeginExit(ownerID string, pos, returnPos region.Vec3i, castTicks int, nowTick uint64) (*CastAction, string) {
	if e.casts[ownerID] != nil {
		return nil, protocol.ErrBusy
	}
	c := &CastAction{
		Kind:      CastExit,
		OwnerID:   ownerID,
		StartTick: nowTick,
		CastTicks: castTicks,
		StartPos:  pos,
		ReturnPos: returnPos,
	}
	e.casts[ownerID] = c
	return c, ""
}

// Cancel aborts the owner's cast and rolls back any pre-reserved
// transaction. Safe to call when nothing is in flight.
func (e *EntryEngine) Cancel(ownerID string, nowTick uint64) bool {
	c := e.casts[ownerID]
	if c == nil {
		return false
	}
	delete(e.casts, ownerID)
	if c.TxnID != "" {
		e.txns.Rollback(ownerID, c.TxnID, c.TxnType, nowTick)
	}
	return true
}

type CastStatus int

const (
	CastIdle CastStatus = iota
	CastCasting
	CastCancelled
	CastCompleted
)

// Step advances one owner's cast by a tick. curPos and interrupted feed the
// cancellation rules: any movement away from the cast position or an
// interrupting action (combat, damage) cancels. The action is returned on
// CastCancelled and CastCompleted.
func (e *EntryEngine) Step(ownerID string, curPos region.Vec3i, interrupted bool, nowTick uint64) (*CastAction, CastStatus) {
	c := e.casts[ownerID]
	if c == nil {
		return nil, CastIdle
	}
	if interrupted || curPos != c.StartPos {
		e.Cancel(ownerID, nowTick)
		return c, CastCancelled
	}
	if nowTick-c.StartTick < uint64(c.CastTicks) {
		return nil, CastCasting
	}
	delete(e.casts, ownerID)
	// The reservation is committed by the caller once the follow-up action
	// (teleport + construction kick-off) is actually underway.
	return c, CastCompleted
}
