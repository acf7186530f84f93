package world

import (
	"log"

	"spatialrefuge.dev/internal/sim/catalogs"
	"spatialrefuge.dev/internal/sim/construct"
	"spatialrefuge.dev/internal/sim/region"
	"spatialrefuge.dev/internal/sim/tuning"
	"spatialrefuge.dev/internal/sim/txn"
)

// WorldConfig wires the world's collaborators. RegionBackend and the audit
// sinks are injected so tests can substitute in-memory fakes.
type WorldConfig struct {
	Tuning   tuning.Tuning
	Catalogs *catalogs.Catalogs

	RegionBackend region.Backend

	TxnAudit     txn.AuditFn
	ConstructLog construct.LogFn

	Logger *log.Logger
}
