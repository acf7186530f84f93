package world

// OwnerState is the per-player transient record: position, inventory, and
// the cooldown bookkeeping stored alongside the owning entity rather than in
// the global region registry.
type OwnerState struct {
	ID   string
	Name string

	// ResumeToken is a transport-level token used for reconnects.
	ResumeToken string

	Pos Vec3i
	Yaw int

	Inventory map[string]int

	InRefuge  bool
	ReturnPos Vec3i

	LastActionTick       uint64
	LastDamageTick       uint64
	CooldownPenaltyTicks int
	RelicMoveReadyTick   uint64

	relicMoveWindow rateWindow

	out chan []byte
}

func (o *OwnerState) initDefaults() {
	if o.Inventory == nil {
		o.Inventory = map[string]int{}
	}
}

// rateWindow is a fixed-window rate limiter keyed to ticks.
type rateWindow struct {
	StartTick uint64
	Count     int
}

// allow consumes one slot when the window permits it, reporting the
// remaining cooldown in ticks otherwise.
func (w *rateWindow) allow(nowTick uint64, windowTicks uint64, max int) (ok bool, cooldownTicks uint64) {
	if windowTicks == 0 || max <= 0 {
		return true, 0
	}
	if nowTick-w.StartTick >= windowTicks {
		w.StartTick = nowTick
		w.Count = 0
	}
	if w.Count >= max {
		return false, w.StartTick + windowTicks - nowTick
	}
	w.Count++
	return true, 0
}
