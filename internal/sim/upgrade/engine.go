package upgrade

import (
	"spatialrefuge.dev/internal/protocol"
	"spatialrefuge.dev/internal/sim/catalogs"
	"spatialrefuge.dev/internal/sim/ledger"
	"spatialrefuge.dev/internal/sim/region"
	"spatialrefuge.dev/internal/sim/txn"
)

// StartConstructionFn asks the host to run a boundary rebuild for the region
// at the new half-size. relicSearchHalf is the *old* half-size: the relic has
// not moved yet at invocation time, so the search must cover where it
// actually is.
type StartConstructionFn func(r *region.Region, halfSize, relicSearchHalf int)

// Engine validates and applies purchases by composing the transaction
// manager (payment), the region store (state change) and, for the expansion
// upgrade, the construction scheduler (boundary rebuild).
type Engine struct {
	catalog *catalogs.Catalogs
	ledger  *ledger.Ledger
	txns    *txn.Manager
	regions *region.Store

	halfSizeForTier func(tier int) int
	startBuild      StartConstructionFn
}

func NewEngine(catalog *catalogs.Catalogs, led *ledger.Ledger, txns *txn.Manager, regions *region.Store, halfSizeForTier func(int) int, startBuild StartConstructionFn) *Engine {
	return &Engine{
		catalog:         catalog,
		ledger:          led,
		txns:            txns,
		regions:         regions,
		halfSizeForTier: halfSizeForTier,
		startBuild:      startBuild,
	}
}

// Requirements expands a level's cost table into ledger requirements with
// the static substitution table applied.
func (e *Engine) Requirements(def catalogs.UpgradeDef, targetLevel int) []ledger.Requirement {
	lv := def.Levels[targetLevel-1]
	reqs := make([]ledger.Requirement, 0, len(lv.Costs))
	for _, c := range lv.Costs {
		reqs = append(reqs, ledger.Requirement{
			Item:        c.Item,
			Substitutes: e.catalog.Substitutions.SubstitutesFor(c.Item),
			Count:       c.Count,
		})
	}
	return reqs
}

// CanPurchase checks every precondition except the lock itself: the upgrade
// exists, prerequisites are maxed, the target level is exactly current+1 and
// within bounds, and the ledger can satisfy the cost. Returns a protocol
// reason code on failure.
func (e *Engine) CanPurchase(ownerID, upgradeID string, targetLevel int) (bool, string) {
	def, ok := e.catalog.Upgrades.ByID[upgradeID]
	if !ok {
		return false, protocol.ErrUnknownUpgrade
	}
	r := e.regions.Get(ownerID)
	cur := 0
	if r != nil {
		cur = r.Level(upgradeID)
	}
	if targetLevel == 0 {
		targetLevel = cur + 1
	}
	for _, p := range def.Prereqs {
		pdef := e.catalog.Upgrades.ByID[p]
		have := 0
		if r != nil {
			have = r.Level(p)
		}
		if have < pdef.MaxLevel {
			return false, protocol.ErrPrereqMissing
		}
	}
	if targetLevel > def.MaxLevel {
		return false, protocol.ErrMaxLevel
	}
	if targetLevel != cur+1 {
		return false, protocol.ErrLevelSkip
	}
	for _, req := range e.Requirements(def, targetLevel) {
		total, _ := e.ledger.SubstitutionCount(ownerID, req)
		if total < req.Count {
			return false, protocol.ErrNoResource
		}
	}
	return true, ""
}

// PurchaseResult reports a successful authoritative purchase.
type PurchaseResult struct {
	UpgradeID     string
	NewLevel      int
	TransactionID string
	Region        *region.Region
}

// Purchase is the authoritative path: reserve cost, apply the level change,
// commit, then kick off the boundary rebuild for the expansion upgrade. On
// any failure the reservation is rolled back and a reason code returned.
func (e *Engine) Purchase(ownerID, upgradeID string, targetLevel int, nowTick uint64) (*PurchaseResult, string) {
	def, ok := e.catalog.Upgrades.ByID[upgradeID]
	if !ok {
		return nil, protocol.ErrUnknownUpgrade
	}
	r, _, err := e.regions.GetOrCreate(ownerID)
	if err != nil {
		return nil, protocol.ErrInternal
	}
	cur := r.Level(upgradeID)
	if targetLevel == 0 {
		targetLevel = cur + 1
	}
	if ok, code := e.CanPurchase(ownerID, upgradeID, targetLevel); !ok {
		return nil, code
	}

	t, err := e.txns.BeginWithSubstitutions(ownerID, txn.TypeFeatureUpgrade, e.Requirements(def, targetLevel), nowTick)
	if err != nil {
		return nil, protocol.ErrNoResource
	}

	oldHalf := 0
	if upgradeID == catalogs.ExpandRegionUpgradeID {
		oldHalf = e.halfSizeForTier(r.SizeTier)
	}

	r.SetLevel(upgradeID, targetLevel)
	if upgradeID == catalogs.ExpandRegionUpgradeID {
		r.SizeTier = targetLevel
		r.BoundaryPresent = false
	}
	if err := e.regions.Save(r); err != nil {
		r.SetLevel(upgradeID, cur)
		if upgradeID == catalogs.ExpandRegionUpgradeID {
			r.SizeTier = cur
		}
		e.txns.Rollback(ownerID, t.ID, t.Type, nowTick)
		return nil, protocol.ErrInternal
	}

	if !e.txns.Commit(ownerID, t.ID, nowTick) {
		// The reservation vanished between Begin and Commit (TTL sweep on
		// the same tick cannot happen; treat as internal).
		return nil, protocol.ErrInternal
	}

	if upgradeID == catalogs.ExpandRegionUpgradeID && e.startBuild != nil {
		e.startBuild(r, e.halfSizeForTier(r.SizeTier), oldHalf)
	}

	return &PurchaseResult{
		UpgradeID:     upgradeID,
		NewLevel:      targetLevel,
		TransactionID: t.ID,
		Region:        r,
	}, ""
}
