package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"spatialrefuge.dev/internal/sim/txn"
)

func TestTxnLogger_RoundtripsEntries(t *testing.T) {
	dir := t.TempDir()
	l := NewTxnLogger(dir)

	want := []txn.AuditEntry{
		{Tick: 1, Owner: "owner_1", TxnID: "txn_a", Type: "FEATURE_UPGRADE", Action: "BEGIN", Items: map[string]int{"PLANK": 10}},
		{Tick: 2, Owner: "owner_1", TxnID: "txn_a", Type: "FEATURE_UPGRADE", Action: "COMMIT"},
	}
	for _, e := range want {
		if err := l.WriteAudit(e); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	hour := time.Now().UTC().Format("2006-01-02-15")
	path := filepath.Join(dir, "txn", "txn-"+hour+".jsonl.zst")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var got []txn.AuditEntry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e txn.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line: %v", err)
		}
		got = append(got, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("entries=%d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].TxnID != want[i].TxnID || got[i].Action != want[i].Action || got[i].Tick != want[i].Tick {
			t.Fatalf("entry %d: %#v", i, got[i])
		}
	}
	if got[0].Items["PLANK"] != 10 {
		t.Fatalf("items=%v", got[0].Items)
	}
}

func TestJSONLZstdWriter_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	w := NewJSONLZstdWriter(dir, "audit")
	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A restart within the same hour appends a second zstd frame.
	w = NewJSONLZstdWriter(dir, "audit")
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	hour := time.Now().UTC().Format("2006-01-02-15")
	f, err := os.Open(filepath.Join(dir, "audit-"+hour+".jsonl.zst"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var lines int
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		lines++
	}
	if lines != 2 {
		t.Fatalf("lines=%d want 2", lines)
	}
}
