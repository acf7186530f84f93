package txn

import "errors"

// Type distinguishes what a reservation pays for; it is also the key for the
// rollback-by-type fallback when a response arrives without a transaction id.
type Type string

const (
	TypeUpgrade        Type = "UPGRADE"
	TypeFeatureUpgrade Type = "FEATURE_UPGRADE"
)

type State int

const (
	StatePending State = iota
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateCommitted:
		return "COMMITTED"
	case StateRolledBack:
		return "ROLLED_BACK"
	default:
		return "UNKNOWN"
	}
}

// Transaction is a reservation of countable items pending authoritative
// confirmation. Locked holds the concrete per-type allocation; after
// substitution resolution there is no "any of these" claim left.
type Transaction struct {
	ID      string
	OwnerID string
	Type    Type
	Locked  map[string]int
	State   State

	CreatedTick uint64
	seq         uint64
}

var ErrInsufficientResources = errors.New("insufficient resources")

// AuditEntry records one transaction state change for the JSONL audit log.
type AuditEntry struct {
	Tick   uint64         `json:"t"`
	Owner  string         `json:"owner"`
	TxnID  string         `json:"txn_id"`
	Type   string         `json:"txn_type"`
	Action string         `json:"action"` // BEGIN, COMMIT, ROLLBACK, EXPIRE
	Items  map[string]int `json:"items,omitempty"`
	Note   string         `json:"note,omitempty"`
}
