package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"spatialrefuge.dev/internal/sim/catalogs"
	"spatialrefuge.dev/internal/sim/construct"
	"spatialrefuge.dev/internal/sim/region"
	"spatialrefuge.dev/internal/sim/tuning"
	"spatialrefuge.dev/internal/sim/txn"
)

// SQLiteIndex persists the region registry (synchronously, the world loop
// needs the error) and indexes the transaction/construction audit streams
// (asynchronously, the JSONL logs remain the source of truth).
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqTxnAudit reqKind = iota + 1
	reqConstruction
)

type req struct {
	kind reqKind

	audit txn.AuditEntry
	phase construct.PhaseLogEntry
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS regions (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			orphaned INTEGER NOT NULL,
			alloc_idx INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_regions_owner ON regions(owner);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS txn_audit (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			owner TEXT NOT NULL,
			txn_id TEXT NOT NULL,
			txn_type TEXT NOT NULL,
			action TEXT NOT NULL,
			items_json TEXT NOT NULL,
			note TEXT,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_txn_audit_owner ON txn_audit(owner, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_txn_audit_id ON txn_audit(txn_id);`,
		`CREATE TABLE IF NOT EXISTS construction_log (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			owner TEXT NOT NULL,
			region TEXT NOT NULL,
			from_phase TEXT NOT NULL,
			to_phase TEXT NOT NULL,
			phase_ticks INTEGER NOT NULL,
			removed INTEGER NOT NULL,
			built INTEGER NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_construction_region ON construction_log(region, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// region.Backend implementation. Called from the world loop; region mutations
// are rare enough that a synchronous write is fine.

func (s *SQLiteIndex) LoadRegions() ([]*region.Region, error) {
	rows, err := s.db.Query(`SELECT raw_json FROM regions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*region.Region
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r region.Region
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("region row: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) LoadCursor() (int, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key='alloc_cursor'`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var cursor int
	if _, err := fmt.Sscanf(v, "%d", &cursor); err != nil {
		return 0, fmt.Errorf("alloc_cursor value %q: %w", v, err)
	}
	return cursor, nil
}

func (s *SQLiteIndex) SaveCursor(cursor int) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('alloc_cursor',?)`, fmt.Sprintf("%d", cursor))
	return err
}

func (s *SQLiteIndex) UpsertRegion(r *region.Region) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	orphaned := 0
	if r.Orphaned {
		orphaned = 1
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO regions(id,owner,orphaned,alloc_idx,raw_json) VALUES(?,?,?,?,?)`,
		r.ID, r.Owner, orphaned, r.AllocIndex, string(raw),
	)
	return err
}

func (s *SQLiteIndex) DeleteRegion(id string) error {
	_, err := s.db.Exec(`DELETE FROM regions WHERE id=?`, id)
	return err
}

// Async audit indexing.

func (s *SQLiteIndex) WriteTxnAudit(e txn.AuditEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqTxnAudit, audit: e}:
	default:
		// Drop if the indexer falls behind; the JSONL log has the full stream.
	}
}

func (s *SQLiteIndex) WriteConstruction(e construct.PhaseLogEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqConstruction, phase: e}:
	default:
	}
}

// UpsertCatalogs records the active catalog digests and applied tuning so a
// later session can detect config drift.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	{
		// Canonicalize to catalog order for stable diffs.
		defs := make([]catalogs.UpgradeDef, 0, len(cats.Upgrades.Order))
		for _, id := range cats.Upgrades.Order {
			defs = append(defs, cats.Upgrades.ByID[id])
		}
		if b, _ := json.Marshal(defs); len(b) > 0 {
			rows = append(rows, kv{name: "upgrades", digest: cats.Upgrades.Digest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Substitutions.ByPrimary); len(b) > 0 {
		rows = append(rows, kv{name: "substitutions", digest: cats.Substitutions.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO txn_audit(tick,seq,owner,txn_id,txn_type,action,items_json,note) VALUES(?,?,?,?,?,?,?,?)`)
	insertPhase, _ := s.db.Prepare(`INSERT OR REPLACE INTO construction_log(tick,seq,owner,region,from_phase,to_phase,phase_ticks,removed,built) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertAudit != nil {
			_ = insertAudit.Close()
		}
		if insertPhase != nil {
			_ = insertPhase.Close()
		}
	}()

	var (
		tx         *sql.Tx
		opCount    int
		lastCommit = time.Now()

		// Short batches keep the single connection free for the synchronous
		// region writes happening on the world loop.
		commitEvery   = 256
		commitMaxWait = 250 * time.Millisecond

		lastAuditTick uint64
		auditSeq      int
		lastPhaseTick uint64
		phaseSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTxnAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			items, _ := json.Marshal(a.Items)
			if insertAudit != nil {
				if _, err := tx.Stmt(insertAudit).Exec(
					int64(a.Tick), seq, a.Owner, a.TxnID, a.Type, a.Action, string(items), a.Note,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqConstruction:
			p := r.phase
			if p.Tick != lastPhaseTick {
				lastPhaseTick = p.Tick
				phaseSeq = 0
			}
			seq := phaseSeq
			phaseSeq++
			if insertPhase != nil {
				if _, err := tx.Stmt(insertPhase).Exec(
					int64(p.Tick), seq, p.Owner, p.Region, p.From, p.To, p.Ticks, p.Removed, p.Built,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}

		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}
	commit()
}
