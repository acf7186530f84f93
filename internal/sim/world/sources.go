package world

import "spatialrefuge.dev/internal/sim/ledger"

// sources yields the owner's item sources in deduction order: personal
// inventory first, then the relic's storage container when one exists. The
// returned sources wrap the live maps, so Remove mutates real inventory.
func (w *World) sources(ownerID string) []ledger.ItemSource {
	var out []ledger.ItemSource
	if o := w.owners[ownerID]; o != nil {
		out = append(out, ledger.NewMapSource("inventory:"+ownerID, o.Inventory))
	}
	if r := w.regions.Get(ownerID); r != nil && r.RelicPos != nil {
		if relic, ok := w.objects.FindRelic(*r.RelicPos, 0); ok {
			out = append(out, ledger.NewMapSource("relic:"+r.ID, relic.Storage))
		}
	}
	return out
}
