package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	OwnerName       string     `json:"owner_name"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	OwnerID         string       `json:"owner_id"`
	ResumeToken     string       `json:"resume_token"`
	WorldParams     WorldParams  `json:"world_params"`
	Region          *RegionState `json:"region,omitempty"`
}

type WorldParams struct {
	TickRateHz       int `json:"tick_rate_hz"`
	ChunkSize        int `json:"chunk_size"`
	BaseHalfSize     int `json:"base_half_size"`
	HalfSizePerTier  int `json:"half_size_per_tier"`
	MaxSizeTier      int `json:"max_size_tier"`
	EntryCastTicks   int `json:"entry_cast_ticks"`
	ExitCastTicks    int `json:"exit_cast_ticks"`
	RelicMoveCDTicks int `json:"relic_move_cooldown_ticks"`
}

// RegionState is the authoritative snapshot of one owner's refuge, sent
// whenever the server mutates it.
type RegionState struct {
	RegionID        string         `json:"region_id"`
	Owner           string         `json:"owner"`
	Center          [3]int         `json:"center"`
	SizeTier        int            `json:"size_tier"`
	UpgradeLevels   map[string]int `json:"upgrade_levels,omitempty"`
	RelicPos        *[3]int        `json:"relic_pos,omitempty"`
	BoundaryPresent bool           `json:"boundary_present"`
	StructureIDs    []int          `json:"structure_ids,omitempty"`
	Orphaned        bool           `json:"orphaned,omitempty"`
	InheritedFrom   string         `json:"inherited_from,omitempty"`
}

// REQUEST_ENTER (client -> server): begin the cast-time entry action.
type RequestEnterMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ReturnPos       [3]int  `json:"return_pos"`
	VehiclePayload  *[3]int `json:"vehicle_payload,omitempty"`
}

// TELEPORT_TO (server -> client)
type TeleportToMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	TargetPos       [3]int `json:"target_pos"`
}

// CHUNKS_READY (client -> server): the client confirms the target area
// finished streaming in on its side.
type ChunksReadyMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// GENERATION_COMPLETE (server -> client)
type GenerationCompleteMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Region          RegionState `json:"region"`
}

// REQUEST_EXIT (client -> server)
type RequestExitMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// EXIT_READY (server -> client)
type ExitReadyMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReturnPos       [3]int `json:"return_pos"`
}

// REQUEST_FEATURE_UPGRADE (client -> server). TransactionID is the client's
// pessimistic local reservation; the server echoes it back on both the
// success and the error path so the client can resolve exactly that
// reservation.
type RequestFeatureUpgradeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	UpgradeID       string `json:"upgrade_id"`
	TargetLevel     int    `json:"target_level"`
	TransactionID   string `json:"transaction_id,omitempty"`
}

// FEATURE_UPGRADE_COMPLETE (server -> client)
type FeatureUpgradeCompleteMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	UpgradeID       string      `json:"upgrade_id"`
	NewLevel        int         `json:"new_level"`
	TransactionID   string      `json:"transaction_id,omitempty"`
	Region          RegionState `json:"region"`
}

// FEATURE_UPGRADE_ERROR (server -> client). TransactionID may be absent when
// the failure happened before the request's reservation was observed; the
// client then falls back to rollback-by-type.
type FeatureUpgradeErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	UpgradeID       string `json:"upgrade_id,omitempty"`
	TransactionID   string `json:"transaction_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

// REQUEST_MOVE_RELIC (client -> server): corner is one of NW/NE/SW/SE/CENTER.
type RequestMoveRelicMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Corner          string `json:"corner"`
}

// MOVE_RELIC_COMPLETE (server -> client)
type MoveRelicCompleteMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Region          RegionState `json:"region"`
}

// REQUEST_MOD_DATA (client -> server)
type RequestModDataMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// MOD_DATA_RESPONSE (server -> client): full owner state for resync.
type ModDataResponseMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Region          *RegionState   `json:"region,omitempty"`
	Inventory       map[string]int `json:"inventory,omitempty"`
	RelicStorage    map[string]int `json:"relic_storage,omitempty"`
	PendingTxns     []TxnState     `json:"pending_txns,omitempty"`
	Cooldowns       CooldownState  `json:"cooldowns"`
}

type TxnState struct {
	TransactionID string         `json:"transaction_id"`
	TxnType       string         `json:"txn_type"`
	Locked        map[string]int `json:"locked,omitempty"`
}

type CooldownState struct {
	LastActionTick     uint64 `json:"last_action_tick,omitempty"`
	LastDamageTick     uint64 `json:"last_damage_tick,omitempty"`
	RelicMoveReadyTick uint64 `json:"relic_move_ready_tick,omitempty"`
}

// ERROR (server -> client): generic failure for requests without a dedicated
// error pair. TransactionID carries the same rollback contract as
// FEATURE_UPGRADE_ERROR.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	For             string `json:"for,omitempty"`
	TransactionID   string `json:"transaction_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
