package upgrade

import (
	"spatialrefuge.dev/internal/protocol"
	"spatialrefuge.dev/internal/sim/ledger"
	"spatialrefuge.dev/internal/sim/txn"
)

// ClientPurchaser is the non-authoritative side of a purchase: it locks the
// cost locally (pessimistic), sends the request, and waits for an explicit
// commit or error signal from the authoritative peer before finalizing or
// rolling back. A response that never arrives is handled by the TTL sweep,
// not here.
type ClientPurchaser struct {
	txns *txn.Manager

	// pending maps local transaction id -> upgrade id, for reconciling
	// responses.
	pending map[string]string
}

func NewClientPurchaser(txns *txn.Manager) *ClientPurchaser {
	return &ClientPurchaser{txns: txns, pending: map[string]string{}}
}

// Request reserves the cost locally and returns the transaction id to embed
// in the network request.
func (c *ClientPurchaser) Request(ownerID, upgradeID string, reqs []ledger.Requirement, nowTick uint64) (string, string) {
	t, err := c.txns.BeginWithSubstitutions(ownerID, txn.TypeFeatureUpgrade, reqs, nowTick)
	if err != nil {
		return "", protocol.ErrNoResource
	}
	c.pending[t.ID] = upgradeID
	return t.ID, ""
}

// HandleComplete finalizes the local reservation after the server confirmed
// the purchase. Returns false when the id is unknown or already resolved —
// a no-op to investigate, not a crash condition.
func (c *ClientPurchaser) HandleComplete(ownerID, txnID string, nowTick uint64) bool {
	delete(c.pending, txnID)
	return c.txns.Commit(ownerID, txnID, nowTick)
}

// HandleError rolls back the local reservation. An empty txnID forces the
// fallback-by-type path.
func (c *ClientPurchaser) HandleError(ownerID, txnID string, nowTick uint64) bool {
	if txnID != "" {
		delete(c.pending, txnID)
	}
	return c.txns.Rollback(ownerID, txnID, txn.TypeFeatureUpgrade, nowTick)
}

// PendingCount is used by UI affordances to grey out concurrent purchases.
func (c *ClientPurchaser) PendingCount() int { return len(c.pending) }
