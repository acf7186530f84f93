package world

import (
	"encoding/json"

	"spatialrefuge.dev/internal/protocol"
	"spatialrefuge.dev/internal/sim/region"
)

// buildEnv adapts the world to construct.Env for one owner's run.
type buildEnv struct {
	w        *World
	owner    *OwnerState
	region   *region.Region
	halfSize int
}

func (e *buildEnv) TeleportOwner(pos region.Vec3i) {
	e.owner.Pos = pos
	e.owner.InRefuge = true
	e.w.send(e.owner, protocol.TeleportToMsg{
		Type:            protocol.TypeTeleportTo,
		ProtocolVersion: protocol.Version,
		TargetPos:       [3]int{pos.X, pos.Y, pos.Z},
	})
}

func (e *buildEnv) ChunksLoaded(min, max region.Vec3i) bool {
	return e.w.chunks.AreaLoaded(min, max)
}

func (e *buildEnv) RequestChunks(min, max region.Vec3i) {
	e.w.chunks.RequestArea(min, max, e.w.tick.Load())
}

func (e *buildEnv) HintOrientation(yaw int) {
	// Rotating the entity nudges the host's streaming priority toward the
	// faced chunks; here that maps directly onto a priority bump.
	e.owner.Yaw = yaw
	b := e.halfSize + 1
	c := e.region.Center
	e.w.chunks.Prioritize(
		Vec3i{X: c.X - b, Y: c.Y, Z: c.Z - b},
		Vec3i{X: c.X + b, Y: c.Y, Z: c.Z + b},
		e.w.tick.Load(),
	)
}

func (e *buildEnv) ClearHazards(min, max region.Vec3i) int {
	return e.w.objects.ClearArea(min, max)
}

func (e *buildEnv) BoundaryIntact(min, max region.Vec3i) bool {
	return e.w.objects.BoundaryIntact(min, max)
}

func (e *buildEnv) BuildBoundary(min, max region.Vec3i) []int {
	return e.w.objects.BuildBoundary(min, max)
}

func (e *buildEnv) FindRelic(center region.Vec3i, halfSize int) (region.Vec3i, bool) {
	if o, ok := e.w.objects.FindRelic(center, halfSize); ok {
		return o.Pos, true
	}
	return region.Vec3i{}, false
}

func (e *buildEnv) PlaceRelic(pos region.Vec3i) (int, bool) {
	return e.w.objects.Spawn(KindRelic, pos).ID, true
}

func (e *buildEnv) RecalcEnclosure(min, max region.Vec3i) {
	e.w.enclosed[e.region.ID] = e.w.objects.BoundaryIntact(
		Vec3i{X: min.X + 1, Y: min.Y, Z: min.Z + 1},
		Vec3i{X: max.X - 1, Y: max.Y, Z: max.Z - 1},
	)
}

// send marshals and delivers a message to the owner's connection, dropping
// the oldest queued frame rather than blocking the loop.
func (w *World) send(o *OwnerState, v any) {
	if o == nil || o.out == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		w.logf("marshal %T: %v", v, err)
		return
	}
	select {
	case o.out <- b:
		return
	default:
	}
	select {
	case <-o.out:
	default:
	}
	select {
	case o.out <- b:
	default:
	}
}
