package world

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"spatialrefuge.dev/internal/protocol"
	"spatialrefuge.dev/internal/sim/construct"
	"spatialrefuge.dev/internal/sim/ledger"
	"spatialrefuge.dev/internal/sim/region"
	"spatialrefuge.dev/internal/sim/tuning"
	"spatialrefuge.dev/internal/sim/txn"
	"spatialrefuge.dev/internal/sim/upgrade"
)

// World owns all authoritative refuge state and advances it on a fixed tick.
// Every mutation happens on the world loop goroutine; the transport talks to
// it through channels only.
type World struct {
	cfg WorldConfig

	tick atomic.Uint64

	chunks  *ChunkStore
	objects *ObjectStore
	owners  map[string]*OwnerState

	regions  *region.Store
	ledger   *ledger.Ledger
	txns     *txn.Manager
	upgrades *upgrade.Engine
	entry    *upgrade.EntryEngine

	// builds holds the active construction run per owner; at most one.
	builds map[string]*construct.Scheduler

	// enclosed caches the post-build room recalculation per region id.
	enclosed map[string]bool

	join  chan JoinRequest
	leave chan string
	inbox chan CommandEnvelope
	stop  chan struct{}
}

// JoinRequest registers a client connection with the world loop.
type JoinRequest struct {
	Name        string
	ResumeToken string
	Out         chan []byte
	Resp        chan JoinResponse
}

type JoinResponse struct {
	OwnerID     string
	ResumeToken string
	// Region is the owner's refuge snapshot when one exists already.
	Region *protocol.RegionState
	Err    string
}

// CommandEnvelope carries one decoded-by-type client request into the loop.
type CommandEnvelope struct {
	OwnerID string
	Type    string
	Raw     []byte
}

func New(cfg WorldConfig) (*World, error) {
	if cfg.Catalogs == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	if cfg.RegionBackend == nil {
		return nil, fmt.Errorf("world: nil region backend")
	}
	t := cfg.Tuning

	placement := region.Placement{
		Step:    2*t.MaxHalfSize() + t.Region.SpacingMargin,
		OriginY: t.Region.OriginY,
	}
	regions, err := region.NewStore(placement, cfg.RegionBackend)
	if err != nil {
		return nil, err
	}

	w := &World{
		cfg:      cfg,
		chunks:   NewChunkStore(t.ChunkSize, t.ChunkLoadDelayTicks, t.ChunkPriorityCutTicks),
		objects:  NewObjectStore(),
		owners:   map[string]*OwnerState{},
		regions:  regions,
		builds:   map[string]*construct.Scheduler{},
		enclosed: map[string]bool{},
		join:     make(chan JoinRequest, 16),
		leave:    make(chan string, 16),
		inbox:    make(chan CommandEnvelope, 256),
		stop:     make(chan struct{}),
	}

	w.ledger = ledger.New(ledger.FuncResolver(w.sources))
	w.txns = txn.NewManager(w.ledger, txn.NewStore(), ledger.FuncResolver(w.sources), t.Transactions.TTLTicks, cfg.TxnAudit)
	w.entry = upgrade.NewEntryEngine(w.txns)
	w.upgrades = upgrade.NewEngine(cfg.Catalogs, w.ledger, w.txns, regions, t.HalfSizeForTier, w.startBoundaryRebuild)
	return w, nil
}

func (w *World) Tick() uint64 { return w.tick.Load() }

func (w *World) Tuning() tuning.Tuning { return w.cfg.Tuning }

// Inbox is the transport's write side for client requests.
func (w *World) Inbox() chan<- CommandEnvelope { return w.inbox }

// Join registers a connection; Leave detaches it.
func (w *World) Join() chan<- JoinRequest { return w.join }
func (w *World) Leave() chan<- string     { return w.leave }

func (w *World) logf(format string, args ...any) {
	if w.cfg.Logger != nil {
		w.cfg.Logger.Printf(format, args...)
	}
}

func (w *World) handleJoin(req JoinRequest) {
	// Resume an existing owner when the token matches.
	if req.ResumeToken != "" {
		for _, o := range w.owners {
			if o.ResumeToken == req.ResumeToken {
				o.out = req.Out
				req.Resp <- JoinResponse{OwnerID: o.ID, ResumeToken: o.ResumeToken, Region: w.regionSnapshot(o.ID)}
				return
			}
		}
	}

	id := "owner_" + uuid.NewString()[:8]
	o := &OwnerState{
		ID:          id,
		Name:        req.Name,
		ResumeToken: uuid.NewString(),
		out:         req.Out,
	}
	o.initDefaults()
	w.owners[id] = o
	req.Resp <- JoinResponse{OwnerID: id, ResumeToken: o.ResumeToken}
}

func (w *World) handleLeave(ownerID string) {
	if o := w.owners[ownerID]; o != nil {
		o.out = nil
	}
}

// startBoundaryRebuild is the upgrade engine's hook for the expansion
// upgrade: rebuild the boundary at the new half-size, searching for the
// relic at the old one.
func (w *World) startBoundaryRebuild(r *region.Region, halfSize, relicSearchHalf int) {
	o := w.owners[r.Owner]
	if o == nil {
		return
	}
	w.startBuild(o, r, halfSize, relicSearchHalf)
}

func (w *World) startBuild(o *OwnerState, r *region.Region, halfSize, relicSearchHalf int) {
	if _, running := w.builds[o.ID]; running {
		return
	}
	env := &buildEnv{w: w, owner: o, region: r, halfSize: halfSize}
	w.builds[o.ID] = construct.NewScheduler(env, construct.Config{
		Region:              r,
		HalfSize:            halfSize,
		RelicSearchHalfSize: relicSearchHalf,
		BudgetTicks:         w.cfg.Tuning.ConstructionBudgetTicks,
		Buffer:              1,
		Authoritative:       true,
	}, w.cfg.ConstructLog)
}
