package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_FillEveryKnob(t *testing.T) {
	d := Defaults()
	if d.TickRateHz <= 0 || d.ChunkSize <= 0 || d.ChunkLoadDelayTicks <= 0 {
		t.Fatalf("chunk defaults: %#v", d)
	}
	if d.Region.BaseHalfSize <= 0 || d.Region.MaxSizeTier <= 0 || d.Region.SpacingMargin <= 0 {
		t.Fatalf("region defaults: %#v", d.Region)
	}
	if d.Transactions.TTLTicks <= 0 || d.ConstructionBudgetTicks <= 0 {
		t.Fatalf("budget defaults: %#v", d)
	}
	if d.EntryCastTicks <= 0 || d.ExitCastTicks <= 0 || d.RelicMoveCooldownTicks <= 0 {
		t.Fatalf("cast defaults: %#v", d)
	}
}

func TestLoad_OverridesAndFills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := []byte("tick_rate_hz: 20\nregion:\n  base_half_size: 5\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TickRateHz != 20 || got.Region.BaseHalfSize != 5 {
		t.Fatalf("overrides lost: %#v", got)
	}
	// Unspecified knobs pick up defaults.
	if got.ChunkSize != 16 || got.Region.MaxSizeTier != 4 {
		t.Fatalf("defaults missing: %#v", got)
	}
}

func TestHalfSizeForTier_Clamps(t *testing.T) {
	d := Defaults() // base 8, +4 per tier, max tier 4
	cases := []struct{ tier, want int }{
		{-1, 8},
		{0, 8},
		{2, 16},
		{4, 24},
		{9, 24},
	}
	for _, c := range cases {
		if got := d.HalfSizeForTier(c.tier); got != c.want {
			t.Fatalf("tier %d: got %d want %d", c.tier, got, c.want)
		}
	}
	if d.MaxHalfSize() != 24 {
		t.Fatalf("max half=%d", d.MaxHalfSize())
	}
}
