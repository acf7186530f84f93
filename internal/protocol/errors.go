package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Request validation.
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrUnknownUpgrade = "E_UNKNOWN_UPGRADE"
	ErrPrereqMissing  = "E_PREREQ_MISSING"
	ErrLevelSkip      = "E_LEVEL_SKIP"
	ErrMaxLevel       = "E_MAX_LEVEL"
	ErrCooldown       = "E_COOLDOWN"

	// Resources.
	ErrNoResource = "E_NO_RESOURCE"
	ErrTxnUnknown = "E_TXN_UNKNOWN"

	// World state.
	ErrWorldNotLoaded = "E_WORLD_NOT_LOADED"
	ErrConflict       = "E_CONFLICT"
	ErrBusy           = "E_BUSY"
	ErrInterrupted    = "E_INTERRUPTED"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrUnknownUpgrade:  {},
	ErrPrereqMissing:   {},
	ErrLevelSkip:       {},
	ErrMaxLevel:        {},
	ErrCooldown:        {},
	ErrNoResource:      {},
	ErrTxnUnknown:      {},
	ErrWorldNotLoaded:  {},
	ErrConflict:        {},
	ErrBusy:            {},
	ErrInterrupted:     {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
