package world

import "testing"

func TestChunkStore_LoadsAfterDelay(t *testing.T) {
	s := NewChunkStore(16, 10, 3)
	min, max := Vec3i{X: 0, Z: 0}, Vec3i{X: 40, Z: 40}

	s.RequestArea(min, max, 100)
	if s.AreaLoaded(min, max) {
		t.Fatalf("loaded immediately")
	}
	s.Tick(109)
	if s.AreaLoaded(min, max) {
		t.Fatalf("loaded before the delay elapsed")
	}
	s.Tick(110)
	if !s.AreaLoaded(min, max) {
		t.Fatalf("not loaded after the delay")
	}
	if got := s.LoadedCount(); got != 9 {
		t.Fatalf("loaded chunks=%d want 9", got)
	}
}

func TestChunkStore_RepeatRequestKeepsReadyTick(t *testing.T) {
	s := NewChunkStore(16, 10, 3)
	min, max := Vec3i{X: 0, Z: 0}, Vec3i{X: 0, Z: 0}

	s.RequestArea(min, max, 100)
	s.RequestArea(min, max, 105) // must not push readiness out
	s.Tick(110)
	if !s.AreaLoaded(min, max) {
		t.Fatalf("repeat request reset the ready tick")
	}
}

func TestChunkStore_PrioritizeShavesTicks(t *testing.T) {
	s := NewChunkStore(16, 10, 3)
	min, max := Vec3i{X: 0, Z: 0}, Vec3i{X: 0, Z: 0}

	s.RequestArea(min, max, 100) // ready at 110
	s.Prioritize(min, max, 101)  // ready at 107
	s.Tick(106)
	if s.AreaLoaded(min, max) {
		t.Fatalf("loaded too early")
	}
	s.Tick(107)
	if !s.AreaLoaded(min, max) {
		t.Fatalf("priority cut not applied")
	}
}

func TestChunkStore_PrioritizeNeverSchedulesInThePast(t *testing.T) {
	s := NewChunkStore(16, 10, 8)
	min, max := Vec3i{X: 0, Z: 0}, Vec3i{X: 0, Z: 0}

	s.RequestArea(min, max, 100) // ready at 110
	s.Prioritize(min, max, 108)  // 110-8 < now: clamp to 109
	s.Tick(108)
	if s.AreaLoaded(min, max) {
		t.Fatalf("loaded in the past")
	}
	s.Tick(109)
	if !s.AreaLoaded(min, max) {
		t.Fatalf("clamped priority not applied")
	}
}
