package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"spatialrefuge.dev/internal/persistence/indexdb"
	persistlog "spatialrefuge.dev/internal/persistence/log"
	"spatialrefuge.dev/internal/sim/catalogs"
	"spatialrefuge.dev/internal/sim/construct"
	"spatialrefuge.dev/internal/sim/tuning"
	"spatialrefuge.dev/internal/sim/txn"
	"spatialrefuge.dev/internal/sim/world"
	"spatialrefuge.dev/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dbPath     = flag.String("db", "", "path to registry db (default: <data>/refuge.db)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	_ = os.MkdirAll(*dataDir, 0o755)
	dp := strings.TrimSpace(*dbPath)
	if dp == "" {
		dp = filepath.Join(*dataDir, "refuge.db")
	}
	idx, err := indexdb.OpenSQLite(dp)
	if err != nil {
		logger.Fatalf("open registry db: %v", err)
	}
	defer idx.Close()

	if err := idx.UpsertCatalogs(cats, tune); err != nil {
		logger.Printf("registry db: upsert catalogs: %v", err)
	}

	txnLog := persistlog.NewTxnLogger(*dataDir)
	constructLog := persistlog.NewConstructionLogger(*dataDir)
	defer txnLog.Close()
	defer constructLog.Close()

	w, err := world.New(world.WorldConfig{
		Tuning:        tune,
		Catalogs:      cats,
		RegionBackend: idx,
		TxnAudit: func(e txn.AuditEntry) {
			if err := txnLog.WriteAudit(e); err != nil {
				logger.Printf("txn log: %v", err)
			}
			idx.WriteTxnAudit(e)
		},
		ConstructLog: func(e construct.PhaseLogEntry) {
			if err := constructLog.WritePhase(e); err != nil {
				logger.Printf("construction log: %v", err)
			}
			idx.WriteConstruction(e)
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP spatialrefuge_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE spatialrefuge_world_tick gauge\n")
		fmt.Fprintf(rw, "spatialrefuge_world_tick %d\n", w.Tick())

		fmt.Fprintf(rw, "# HELP spatialrefuge_inbox_depth Command channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE spatialrefuge_inbox_depth gauge\n")
		fmt.Fprintf(rw, "spatialrefuge_inbox_depth %d\n", len(w.Inbox()))
	})

	if envBool("SR_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (SR_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
