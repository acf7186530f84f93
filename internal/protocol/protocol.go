package protocol

import "encoding/json"

const Version = "1.2"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"

	// Refuge entry/exit.
	TypeRequestEnter       = "REQUEST_ENTER"
	TypeTeleportTo         = "TELEPORT_TO"
	TypeChunksReady        = "CHUNKS_READY"
	TypeGenerationComplete = "GENERATION_COMPLETE"
	TypeRequestExit        = "REQUEST_EXIT"
	TypeExitReady          = "EXIT_READY"

	// Upgrades.
	TypeRequestFeatureUpgrade  = "REQUEST_FEATURE_UPGRADE"
	TypeFeatureUpgradeComplete = "FEATURE_UPGRADE_COMPLETE"
	TypeFeatureUpgradeError    = "FEATURE_UPGRADE_ERROR"

	// Relic administration.
	TypeRequestMoveRelic  = "REQUEST_MOVE_RELIC"
	TypeMoveRelicComplete = "MOVE_RELIC_COMPLETE"

	// Full-state resync.
	TypeRequestModData  = "REQUEST_MOD_DATA"
	TypeModDataResponse = "MOD_DATA_RESPONSE"

	// Generic failure envelope for requests without a dedicated error message.
	TypeError = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
