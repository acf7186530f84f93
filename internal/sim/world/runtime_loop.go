package world

import (
	"context"
	"time"

	"spatialrefuge.dev/internal/protocol"
	"spatialrefuge.dev/internal/sim/upgrade"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingCommands []CommandEnvelope

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingCommands = append(pendingCommands, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingCommands)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingCommands = pendingCommands[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick with the same ordering
// semantics as the server loop. Intended for deterministic tests.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, commands []CommandEnvelope) uint64 {
	w.step(joins, leaves, commands)
	return w.tick.Load()
}

func (w *World) step(joins []JoinRequest, leaves []string, commands []CommandEnvelope) {
	now := w.tick.Add(1)

	w.chunks.Tick(now)

	for _, req := range joins {
		w.handleJoin(req)
	}
	for _, id := range leaves {
		w.handleLeave(id)
	}
	for _, env := range commands {
		w.handleCommand(env, now)
	}

	w.stepCasts(now)
	w.stepBuilds(now)

	w.txns.SweepExpired(now)
}

// stepCasts drives the deferred enter/exit actions: a cast completes after
// holding still for its full duration, and cancels (rolling back any
// reservation) on movement or damage.
func (w *World) stepCasts(now uint64) {
	for id, o := range w.owners {
		c := w.entry.Active(id)
		if c == nil {
			continue
		}
		interrupted := o.LastDamageTick > c.StartTick
		act, status := w.entry.Step(id, o.Pos, interrupted, now)
		switch status {
		case upgrade.CastCancelled:
			forType := protocol.TypeRequestEnter
			if act.Kind == upgrade.CastExit {
				forType = protocol.TypeRequestExit
			}
			w.sendError(o, forType, "", protocol.ErrInterrupted, "action interrupted")
		case upgrade.CastCompleted:
			w.completeCast(o, act, now)
		}
	}
}

func (w *World) stepBuilds(now uint64) {
	for id, s := range w.builds {
		s.Step(now)
		if !s.Done() {
			continue
		}
		delete(w.builds, id)
		w.finishBuild(w.owners[id], s, now)
	}
}
