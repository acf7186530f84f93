package world

import (
	"encoding/json"
	"strings"

	"spatialrefuge.dev/internal/protocol"
	"spatialrefuge.dev/internal/sim/construct"
	"spatialrefuge.dev/internal/sim/region"
	"spatialrefuge.dev/internal/sim/upgrade"
)

func (w *World) handleCommand(env CommandEnvelope, now uint64) {
	o := w.owners[env.OwnerID]
	if o == nil {
		return
	}
	o.LastActionTick = now

	switch env.Type {
	case protocol.TypeRequestEnter:
		var msg protocol.RequestEnterMsg
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			w.sendError(o, env.Type, "", protocol.ErrProtoBadRequest, "bad request")
			return
		}
		w.handleRequestEnter(o, msg, now)
	case protocol.TypeChunksReady:
		w.handleChunksReady(o, now)
	case protocol.TypeRequestExit:
		w.handleRequestExit(o, now)
	case protocol.TypeRequestFeatureUpgrade:
		var msg protocol.RequestFeatureUpgradeMsg
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			w.sendError(o, env.Type, "", protocol.ErrProtoBadRequest, "bad request")
			return
		}
		w.handleFeatureUpgrade(o, msg, now)
	case protocol.TypeRequestMoveRelic:
		var msg protocol.RequestMoveRelicMsg
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			w.sendError(o, env.Type, "", protocol.ErrProtoBadRequest, "bad request")
			return
		}
		w.handleMoveRelic(o, msg, now)
	case protocol.TypeRequestModData:
		w.handleModData(o)
	default:
		w.sendError(o, env.Type, "", protocol.ErrProtoBadRequest, "unknown request type")
	}
}

// handleRequestEnter starts the cast-time entry action. The region record is
// created (or an orphan adopted) on the first entry request; the first claim
// reserves the configured entry cost, committed when the cast completes.
func (w *World) handleRequestEnter(o *OwnerState, msg protocol.RequestEnterMsg, now uint64) {
	if o.InRefuge {
		w.sendError(o, protocol.TypeRequestEnter, "", protocol.ErrConflict, "already inside refuge")
		return
	}
	r, created, err := w.regions.GetOrCreate(o.ID)
	if err != nil {
		w.logf("get or create region for %s: %v", o.ID, err)
		w.sendError(o, protocol.TypeRequestEnter, "", protocol.ErrInternal, "region unavailable")
		return
	}

	costs := map[string]int(nil)
	if created && r.InheritedFrom == "" {
		costs = w.cfg.Tuning.FirstEntryCosts
	}

	returnPos := Vec3i{X: msg.ReturnPos[0], Y: msg.ReturnPos[1], Z: msg.ReturnPos[2]}
	if _, code := w.entry.BeginEnter(o.ID, o.Pos, returnPos, w.cfg.Tuning.EntryCastTicks, costs, now); code != "" {
		w.sendError(o, protocol.TypeRequestEnter, "", code, "cannot start entry")
		return
	}
	if created && r.InheritedFrom != "" {
		// Notify exactly once; later loads see the flag already cleared.
		w.logf("owner %s inherited refuge %s from %s", o.ID, r.ID, r.InheritedFrom)
	}
}

// handleChunksReady is the client telling us its side finished streaming;
// we use it as a priority hint for the server-side probe.
func (w *World) handleChunksReady(o *OwnerState, now uint64) {
	r := w.regions.Get(o.ID)
	if r == nil {
		return
	}
	b := w.cfg.Tuning.HalfSizeForTier(r.SizeTier) + 1
	c := r.Center
	w.chunks.Prioritize(
		Vec3i{X: c.X - b, Y: c.Y, Z: c.Z - b},
		Vec3i{X: c.X + b, Y: c.Y, Z: c.Z + b},
		now,
	)
}

func (w *World) handleRequestExit(o *OwnerState, now uint64) {
	if !o.InRefuge {
		w.sendError(o, protocol.TypeRequestExit, "", protocol.ErrConflict, "not inside refuge")
		return
	}
	if _, code := w.entry.BeginExit(o.ID, o.Pos, o.ReturnPos, w.cfg.Tuning.ExitCastTicks, now); code != "" {
		w.sendError(o, protocol.TypeRequestExit, "", code, "cannot start exit")
		return
	}
}

// completeCast fires when a cast-time action finishes uninterrupted.
func (w *World) completeCast(o *OwnerState, act *upgrade.CastAction, now uint64) {
	switch act.Kind {
	case upgrade.CastEnter:
		if act.TxnID != "" && !w.txns.Commit(o.ID, act.TxnID, now) {
			// Reservation expired mid-cast; charge again or bail.
			w.sendError(o, protocol.TypeRequestEnter, act.TxnID, protocol.ErrTxnUnknown, "entry reservation lost")
			return
		}
		r := w.regions.Get(o.ID)
		if r == nil {
			w.sendError(o, protocol.TypeRequestEnter, "", protocol.ErrInternal, "region vanished")
			return
		}
		o.ReturnPos = act.ReturnPos
		half := w.cfg.Tuning.HalfSizeForTier(r.SizeTier)
		w.startBuild(o, r, half, half)
	case upgrade.CastExit:
		o.InRefuge = false
		o.Pos = act.ReturnPos
		w.send(o, protocol.ExitReadyMsg{
			Type:            protocol.TypeExitReady,
			ProtocolVersion: protocol.Version,
			ReturnPos:       [3]int{act.ReturnPos.X, act.ReturnPos.Y, act.ReturnPos.Z},
		})
	}
}

// finishBuild reports a terminal construction run back to the client.
func (w *World) finishBuild(o *OwnerState, s *construct.Scheduler, now uint64) {
	res := s.Result()
	if res == nil {
		return
	}
	if res.Phase == construct.PhaseFailed {
		msg := "construction timed out"
		if res.AreaNeverLoaded {
			msg = "area failed to load"
		}
		// The owner was already teleported in; put them back where they came
		// from rather than stranding them in an unloaded area.
		if o != nil && o.InRefuge {
			o.InRefuge = false
			o.Pos = o.ReturnPos
			w.send(o, protocol.TeleportToMsg{
				Type:            protocol.TypeTeleportTo,
				ProtocolVersion: protocol.Version,
				TargetPos:       [3]int{o.ReturnPos.X, o.ReturnPos.Y, o.ReturnPos.Z},
			})
		}
		w.sendError(o, protocol.TypeRequestEnter, "", protocol.ErrWorldNotLoaded, msg)
		return
	}
	if err := w.regions.Save(res.Region); err != nil {
		w.logf("persist region %s: %v", res.Region.ID, err)
	}
	if o == nil {
		return
	}
	w.send(o, protocol.GenerationCompleteMsg{
		Type:            protocol.TypeGenerationComplete,
		ProtocolVersion: protocol.Version,
		Region:          w.regionState(res.Region),
	})
}

func (w *World) handleFeatureUpgrade(o *OwnerState, msg protocol.RequestFeatureUpgradeMsg, now uint64) {
	res, code := w.upgrades.Purchase(o.ID, msg.UpgradeID, msg.TargetLevel, now)
	if code != "" {
		// Echo the client's transaction id so it can roll back exactly the
		// reservation it made; an absent id forces its fallback-by-type path.
		w.send(o, protocol.FeatureUpgradeErrorMsg{
			Type:            protocol.TypeFeatureUpgradeError,
			ProtocolVersion: protocol.Version,
			UpgradeID:       msg.UpgradeID,
			TransactionID:   msg.TransactionID,
			Code:            code,
		})
		return
	}
	w.send(o, protocol.FeatureUpgradeCompleteMsg{
		Type:            protocol.TypeFeatureUpgradeComplete,
		ProtocolVersion: protocol.Version,
		UpgradeID:       res.UpgradeID,
		NewLevel:        res.NewLevel,
		TransactionID:   msg.TransactionID,
		Region:          w.regionState(res.Region),
	})
}

func (w *World) handleMoveRelic(o *OwnerState, msg protocol.RequestMoveRelicMsg, now uint64) {
	r := w.regions.Get(o.ID)
	if r == nil || r.RelicPos == nil {
		w.sendError(o, protocol.TypeRequestMoveRelic, "", protocol.ErrBadRequest, "no relic to move")
		return
	}
	if now < o.RelicMoveReadyTick {
		w.sendError(o, protocol.TypeRequestMoveRelic, "", protocol.ErrCooldown, "relic move on cooldown")
		return
	}
	rl := w.cfg.Tuning.RateLimits
	if ok, _ := o.relicMoveWindow.allow(now, uint64(rl.RelicMoveWindowTicks), rl.RelicMoveMax); !ok {
		w.sendError(o, protocol.TypeRequestMoveRelic, "", protocol.ErrCooldown, "relic move rate limited")
		return
	}

	half := w.cfg.Tuning.HalfSizeForTier(r.SizeTier)
	target, ok := cornerPos(r.Center, half, msg.Corner)
	if !ok {
		w.sendError(o, protocol.TypeRequestMoveRelic, "", protocol.ErrBadRequest, "bad corner")
		return
	}

	relic, found := w.objects.FindRelic(r.Center, half)
	if !found {
		w.sendError(o, protocol.TypeRequestMoveRelic, "", protocol.ErrConflict, "relic not found in region")
		return
	}
	w.objects.Move(relic.ID, target)
	p := target
	r.RelicPos = &p
	if err := w.regions.Save(r); err != nil {
		w.logf("persist region %s: %v", r.ID, err)
	}

	penalty := uint64(o.CooldownPenaltyTicks)
	o.RelicMoveReadyTick = now + uint64(w.cfg.Tuning.RelicMoveCooldownTicks) + penalty

	w.send(o, protocol.MoveRelicCompleteMsg{
		Type:            protocol.TypeMoveRelicComplete,
		ProtocolVersion: protocol.Version,
		Region:          w.regionState(r),
	})
}

// cornerPos resolves a corner name to a position one cell inside the
// boundary so the relic never collides with the walls.
func cornerPos(center region.Vec3i, half int, corner string) (region.Vec3i, bool) {
	in := half - 1
	if in < 0 {
		in = 0
	}
	switch strings.ToUpper(strings.TrimSpace(corner)) {
	case "CENTER":
		return center, true
	case "NW":
		return region.Vec3i{X: center.X - in, Y: center.Y, Z: center.Z - in}, true
	case "NE":
		return region.Vec3i{X: center.X + in, Y: center.Y, Z: center.Z - in}, true
	case "SW":
		return region.Vec3i{X: center.X - in, Y: center.Y, Z: center.Z + in}, true
	case "SE":
		return region.Vec3i{X: center.X + in, Y: center.Y, Z: center.Z + in}, true
	default:
		return region.Vec3i{}, false
	}
}

func (w *World) handleModData(o *OwnerState) {
	resp := protocol.ModDataResponseMsg{
		Type:            protocol.TypeModDataResponse,
		ProtocolVersion: protocol.Version,
		Inventory:       copyCounts(o.Inventory),
		Cooldowns: protocol.CooldownState{
			LastActionTick:     o.LastActionTick,
			LastDamageTick:     o.LastDamageTick,
			RelicMoveReadyTick: o.RelicMoveReadyTick,
		},
	}
	if r := w.regions.Get(o.ID); r != nil {
		st := w.regionState(r)
		resp.Region = &st
		if r.RelicPos != nil {
			if relic, ok := w.objects.FindRelic(*r.RelicPos, 0); ok {
				resp.RelicStorage = copyCounts(relic.Storage)
			}
		}
	}
	for _, t := range w.txns.Store().PendingForOwner(o.ID) {
		resp.PendingTxns = append(resp.PendingTxns, protocol.TxnState{
			TransactionID: t.ID,
			TxnType:       string(t.Type),
			Locked:        copyCounts(t.Locked),
		})
	}
	w.send(o, resp)
}

func copyCounts(src map[string]int) map[string]int {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// regionSnapshot is the nil-safe variant used at join time.
func (w *World) regionSnapshot(ownerID string) *protocol.RegionState {
	r := w.regions.Get(ownerID)
	if r == nil {
		return nil
	}
	st := w.regionState(r)
	return &st
}

func (w *World) regionState(r *region.Region) protocol.RegionState {
	st := protocol.RegionState{
		RegionID:        r.ID,
		Owner:           r.Owner,
		Center:          [3]int{r.Center.X, r.Center.Y, r.Center.Z},
		SizeTier:        r.SizeTier,
		UpgradeLevels:   copyCounts(r.UpgradeLevels),
		BoundaryPresent: r.BoundaryPresent,
		StructureIDs:    r.StructureIDList(),
		Orphaned:        r.Orphaned,
		InheritedFrom:   r.InheritedFrom,
	}
	if r.RelicPos != nil {
		p := [3]int{r.RelicPos.X, r.RelicPos.Y, r.RelicPos.Z}
		st.RelicPos = &p
	}
	return st
}

func (w *World) sendError(o *OwnerState, forType, txnID, code, message string) {
	if !protocol.IsKnownCode(code) {
		code = protocol.ErrInternal
	}
	w.send(o, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		For:             forType,
		TransactionID:   txnID,
		Code:            code,
		Message:         message,
	})
}
