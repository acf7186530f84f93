package construct

import "spatialrefuge.dev/internal/sim/region"

type Phase int

const (
	PhaseTeleportPending Phase = iota
	PhaseAwaitingChunks
	PhaseClearingHazards
	PhaseBuildingBoundary
	PhasePlacingAnchor
	PhaseFinalizing
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseTeleportPending:
		return "TELEPORT_PENDING"
	case PhaseAwaitingChunks:
		return "AWAITING_CHUNKS"
	case PhaseClearingHazards:
		return "CLEARING_HAZARDS"
	case PhaseBuildingBoundary:
		return "BUILDING_BOUNDARY"
	case PhasePlacingAnchor:
		return "PLACING_ANCHOR"
	case PhaseFinalizing:
		return "FINALIZING"
	case PhaseDone:
		return "DONE"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Env is what the scheduler needs from the host world. Creation calls must
// only happen once ChunksLoaded reported true for the covering area; partial
// writes to unloaded world segments are undefined in the host environment.
type Env interface {
	TeleportOwner(pos region.Vec3i)

	// ChunksLoaded probes whether world data covering [min,max] (inclusive)
	// has finished streaming in.
	ChunksLoaded(min, max region.Vec3i) bool
	// RequestChunks asks the host's streaming system to load the area.
	RequestChunks(min, max region.Vec3i)
	// HintOrientation nudges the host's streaming priority toward the
	// needed area. May be a no-op on hosts without that mechanism.
	HintOrientation(yaw int)

	// ClearHazards removes hostile entities, corpses and incidental
	// vegetation from the area; returns how many objects were removed.
	// Idempotent: an already-clear area returns 0.
	ClearHazards(min, max region.Vec3i) int

	// BoundaryIntact reports whether a correctly-sized boundary already
	// encloses [min,max].
	BoundaryIntact(min, max region.Vec3i) bool
	// BuildBoundary creates boundary structures along the exact perimeter
	// and returns their ids.
	BuildBoundary(min, max region.Vec3i) []int

	// FindRelic searches the whole square of the given half-size around
	// center; the anchor may have been relocated to a corner in a prior
	// session.
	FindRelic(center region.Vec3i, halfSize int) (region.Vec3i, bool)
	// PlaceRelic creates the anchor object and returns its structure id.
	PlaceRelic(pos region.Vec3i) (int, bool)

	// RecalcEnclosure performs the one-time post-build recalculation
	// (enclosed-room membership and the like).
	RecalcEnclosure(min, max region.Vec3i)
}

// Result is delivered exactly once, on the tick the scheduler reaches Done or
// Failed.
type Result struct {
	Phase  Phase
	Region *region.Region
	// AreaNeverLoaded means not even the reference tile was observed loaded
	// within budget: reported to the player as an unrecoverable "area failed
	// to load" condition rather than silently retried.
	AreaNeverLoaded bool
}

// PhaseLogEntry records one phase transition for the JSONL audit log.
type PhaseLogEntry struct {
	Tick    uint64 `json:"t"`
	Owner   string `json:"owner"`
	Region  string `json:"region"`
	From    string `json:"from"`
	To      string `json:"to"`
	Ticks   int    `json:"ticks"`
	Removed int    `json:"removed,omitempty"`
	Built   int    `json:"built,omitempty"`
}

type LogFn func(PhaseLogEntry)

// Config fixes one scheduler run. HalfSize is the footprint to build at;
// RelicSearchHalfSize may be larger or smaller (an expansion searches at the
// old size, since the relic has not moved yet at invocation time).
type Config struct {
	Region              *region.Region
	HalfSize            int
	RelicSearchHalfSize int
	BudgetTicks         int
	// Buffer is the safety ring probed and cleared beyond the footprint,
	// one unit wider than the structures themselves.
	Buffer int

	// Authoritative is false on a non-authoritative client: the remote peer
	// performs clearing/building/anchoring and pushes results, so the local
	// run waits for MarkRemoteComplete before finalizing.
	Authoritative bool
}

// Scheduler is an explicit state machine stepped once per tick. Transitions
// only ever happen inside Step; calling Step when a phase's precondition
// isn't met yet leaves the state untouched, so a step is always safe to
// repeat.
type Scheduler struct {
	env Env
	cfg Config
	log LogFn

	phase      Phase
	ticks      int
	phaseTicks int

	refTileSeen  bool
	remoteDone   bool
	clearedCount int
	builtCount   int

	result *Result
}

func NewScheduler(env Env, cfg Config, log LogFn) *Scheduler {
	if cfg.BudgetTicks <= 0 {
		cfg.BudgetTicks = 600
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1
	}
	return &Scheduler{env: env, cfg: cfg, log: log}
}

func (s *Scheduler) Phase() Phase { return s.phase }

// Done reports whether the run reached a terminal phase.
func (s *Scheduler) Done() bool {
	return s.phase == PhaseDone || s.phase == PhaseFailed
}

// Result is non-nil once Done.
func (s *Scheduler) Result() *Result { return s.result }

// MarkRemoteComplete is the client-side "construction complete" signal from
// the authoritative peer.
func (s *Scheduler) MarkRemoteComplete() { s.remoteDone = true }

func (s *Scheduler) footprint() (min, max region.Vec3i) {
	c := s.cfg.Region.Center
	h := s.cfg.HalfSize
	return region.Vec3i{X: c.X - h, Y: c.Y, Z: c.Z - h},
		region.Vec3i{X: c.X + h, Y: c.Y, Z: c.Z + h}
}

func (s *Scheduler) buffered() (min, max region.Vec3i) {
	min, max = s.footprint()
	b := s.cfg.Buffer
	min.X -= b
	min.Z -= b
	max.X += b
	max.Z += b
	return min, max
}

func (s *Scheduler) transition(nowTick uint64, to Phase) {
	from := s.phase
	if s.log != nil {
		s.log(PhaseLogEntry{
			Tick:    nowTick,
			Owner:   s.cfg.Region.Owner,
			Region:  s.cfg.Region.ID,
			From:    from.String(),
			To:      to.String(),
			Ticks:   s.phaseTicks,
			Removed: s.clearedCount,
			Built:   s.builtCount,
		})
	}
	s.phase = to
	s.phaseTicks = 0
}

// Step advances the machine by one construction tick. Returns the phase
// after the step.
func (s *Scheduler) Step(nowTick uint64) Phase {
	if s.Done() {
		return s.phase
	}

	s.ticks++
	s.phaseTicks++
	if s.ticks > s.cfg.BudgetTicks {
		s.fail(nowTick)
		return s.phase
	}

	switch s.phase {
	case PhaseTeleportPending:
		s.env.TeleportOwner(s.cfg.Region.Center)
		min, max := s.buffered()
		s.env.RequestChunks(min, max)
		s.transition(nowTick, PhaseAwaitingChunks)

	case PhaseAwaitingChunks:
		min, max := s.buffered()
		ref := s.cfg.Region.Center
		if s.env.ChunksLoaded(ref, ref) {
			s.refTileSeen = true
		}
		if !s.env.ChunksLoaded(min, max) {
			// Rotate to hint the streaming system while we wait.
			s.env.HintOrientation((s.phaseTicks * 90) % 360)
			return s.phase
		}
		if !s.cfg.Authoritative {
			s.transition(nowTick, PhaseFinalizing)
			return s.phase
		}
		s.transition(nowTick, PhaseClearingHazards)

	case PhaseClearingHazards:
		min, max := s.buffered()
		s.clearedCount += s.env.ClearHazards(min, max)
		s.transition(nowTick, PhaseBuildingBoundary)

	case PhaseBuildingBoundary:
		min, max := s.footprint()
		if !s.env.BoundaryIntact(min, max) {
			ids := s.env.BuildBoundary(min, max)
			for _, id := range ids {
				s.cfg.Region.AddStructure(id)
			}
			s.builtCount += len(ids)
		}
		s.cfg.Region.BoundaryPresent = true
		s.transition(nowTick, PhasePlacingAnchor)

	case PhasePlacingAnchor:
		searchHalf := s.cfg.RelicSearchHalfSize
		if searchHalf <= 0 {
			searchHalf = s.cfg.HalfSize
		}
		if pos, ok := s.env.FindRelic(s.cfg.Region.Center, searchHalf); ok {
			p := pos
			s.cfg.Region.RelicPos = &p
		} else {
			pos := s.cfg.Region.Center
			if id, ok := s.env.PlaceRelic(pos); ok {
				p := pos
				s.cfg.Region.RelicPos = &p
				s.cfg.Region.AddStructure(id)
				s.builtCount++
			} else {
				// Placement not possible yet; retry next tick.
				return s.phase
			}
		}
		s.transition(nowTick, PhaseFinalizing)

	case PhaseFinalizing:
		min, max := s.buffered()
		if !s.env.ChunksLoaded(min, max) {
			return s.phase
		}
		if !s.cfg.Authoritative && !s.remoteDone {
			return s.phase
		}
		s.env.RecalcEnclosure(min, max)
		s.transition(nowTick, PhaseDone)
		s.result = &Result{Phase: PhaseDone, Region: s.cfg.Region}
	}

	return s.phase
}

func (s *Scheduler) fail(nowTick uint64) {
	s.transition(nowTick, PhaseFailed)
	s.result = &Result{
		Phase:           PhaseFailed,
		Region:          s.cfg.Region,
		AreaNeverLoaded: !s.refTileSeen,
	}
}
