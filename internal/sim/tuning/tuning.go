package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`
	ChunkSize  int `yaml:"chunk_size"`

	// Chunk streaming simulation: ticks from first request until a chunk is
	// observable as loaded, and how much a priority hint shaves off.
	ChunkLoadDelayTicks   int `yaml:"chunk_load_delay_ticks"`
	ChunkPriorityCutTicks int `yaml:"chunk_priority_cut_ticks"`

	Region RegionTuning `yaml:"region"`

	Transactions TxnTuning `yaml:"transactions"`

	ConstructionBudgetTicks int `yaml:"construction_budget_ticks"`

	EntryCastTicks int `yaml:"entry_cast_ticks"`
	ExitCastTicks  int `yaml:"exit_cast_ticks"`

	// FirstEntryCosts is reserved (and committed on cast completion) the
	// first time an owner claims a refuge. Later entries are free.
	FirstEntryCosts map[string]int `yaml:"first_entry_costs"`

	RelicMoveCooldownTicks int `yaml:"relic_move_cooldown_ticks"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

type RegionTuning struct {
	BaseHalfSize    int `yaml:"base_half_size"`
	HalfSizePerTier int `yaml:"half_size_per_tier"`
	MaxSizeTier     int `yaml:"max_size_tier"`
	SpacingMargin   int `yaml:"spacing_margin"`
	OriginY         int `yaml:"origin_y"`
}

type TxnTuning struct {
	TTLTicks int `yaml:"ttl_ticks"`
}

type RateLimits struct {
	RelicMoveWindowTicks int `yaml:"relic_move_window_ticks"`
	RelicMoveMax         int `yaml:"relic_move_max"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.fillDefaults()
	return t, nil
}

func Defaults() Tuning {
	var t Tuning
	t.fillDefaults()
	return t
}

func (t *Tuning) fillDefaults() {
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = "1.2"
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 60
	}
	if t.ChunkSize <= 0 {
		t.ChunkSize = 16
	}
	if t.ChunkLoadDelayTicks <= 0 {
		t.ChunkLoadDelayTicks = 30
	}
	if t.ChunkPriorityCutTicks <= 0 {
		t.ChunkPriorityCutTicks = 10
	}
	if t.Region.BaseHalfSize <= 0 {
		t.Region.BaseHalfSize = 8
	}
	if t.Region.HalfSizePerTier <= 0 {
		t.Region.HalfSizePerTier = 4
	}
	if t.Region.MaxSizeTier <= 0 {
		t.Region.MaxSizeTier = 4
	}
	if t.Region.SpacingMargin <= 0 {
		t.Region.SpacingMargin = 32
	}
	if t.Transactions.TTLTicks <= 0 {
		// Lost network responses unlock after ~2 minutes at 60 Hz.
		t.Transactions.TTLTicks = 7200
	}
	if t.ConstructionBudgetTicks <= 0 {
		t.ConstructionBudgetTicks = 600
	}
	if t.EntryCastTicks <= 0 {
		t.EntryCastTicks = 180
	}
	if t.ExitCastTicks <= 0 {
		t.ExitCastTicks = 180
	}
	if t.RelicMoveCooldownTicks <= 0 {
		t.RelicMoveCooldownTicks = 3600
	}
	if t.RateLimits.RelicMoveWindowTicks <= 0 {
		t.RateLimits.RelicMoveWindowTicks = 600
	}
	if t.RateLimits.RelicMoveMax <= 0 {
		t.RateLimits.RelicMoveMax = 2
	}
}

// MaxHalfSize is the footprint half-size at the maximum tier; the placement
// allocator spaces regions assuming every region may eventually reach it.
func (t Tuning) MaxHalfSize() int {
	return t.Region.BaseHalfSize + t.Region.MaxSizeTier*t.Region.HalfSizePerTier
}

// HalfSizeForTier converts a size tier into a footprint half-size.
func (t Tuning) HalfSizeForTier(tier int) int {
	if tier < 0 {
		tier = 0
	}
	if tier > t.Region.MaxSizeTier {
		tier = t.Region.MaxSizeTier
	}
	return t.Region.BaseHalfSize + tier*t.Region.HalfSizePerTier
}
