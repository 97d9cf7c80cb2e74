package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"jobtrack.gg/internal/economy"
	"jobtrack.gg/internal/jobs"
	"jobtrack.gg/internal/leaderboard"
	"jobtrack.gg/internal/persistence/jobsdb"
	persistlog "jobtrack.gg/internal/persistence/log"
	"jobtrack.gg/internal/tracks"
	"jobtrack.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		configDir  = flag.String("configs", "./configs/tracks", "track config directory")
		dbPath     = flag.String("db", "", "sqlite db path (default: <data>/jobs.db)")
		ledgerURL  = flag.String("ledger_url", "", "currency ledger deposit endpoint (empty disables money)")
		maxLevel   = flag.Int("max_level", 100, "maximum track level")
		trackLimit = flag.Int("track_limit", 2, "max simultaneous tracks per actor")

		saveEvery   = flag.Duration("save_interval", 10*time.Minute, "dirty-profile auto-save interval")
		lbEvery     = flag.Duration("leaderboard_interval", 5*time.Minute, "leaderboard refresh interval")
		sweepEvery  = flag.Duration("sweep_interval", 5*time.Second, "dedupe tracker sweep interval")
		flushEvery  = flag.Duration("flush_interval", time.Second, "economy flush interval")
		flushActors = flag.Int("flush_actors", 500, "max actors paid per economy flush")
		lbTopN      = flag.Int("leaderboard_top", 100, "ranked actors cached per track")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	set, err := tracks.Load(*configDir, *maxLevel, nil, logger)
	if err != nil {
		logger.Fatalf("load tracks: %v", err)
	}
	provider := tracks.NewProvider(set)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "jobs.db")
	}
	// Unreachable store at startup disables the whole system.
	store, err := jobsdb.Open(path)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}

	rewards := persistlog.NewRewardLogger(*dataDir)

	var ledger economy.Ledger = economy.DiscardLedger{}
	if strings.TrimSpace(*ledgerURL) != "" {
		ledger = economy.NewHTTPLedger(*ledgerURL)
	} else {
		logger.Printf("no ledger configured; money disabled")
	}
	batcher := economy.NewBatcher(ledger, logger)

	mgr := jobs.NewManager(store, logger)
	hub := ws.NewHub()
	stats := jobs.NewDebugStats(hub, hub)
	effects := jobs.NewEffectQueue(batcher, hub, rewards, logger)
	proc := jobs.NewProcessor(mgr, provider, stats, effects)

	lb := leaderboard.NewCache(store, func() []string { return provider.Current().IDs() }, *lbTopN, logger)

	srv := ws.NewServer(hub, proc, mgr, provider, lb, stats, *trackLimit, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", srv.Handler())
	httpSrv := &http.Server{Addr: *addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGHUP reloads the track configs and swaps the snapshot in place;
	// in-flight operations finish against the set they already dereferenced.
	go func() {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				next, err := tracks.Load(*configDir, *maxLevel, nil, logger)
				if err != nil {
					logger.Printf("reload tracks: %v", err)
					continue
				}
				provider.Swap(next)
				logger.Printf("reloaded %d tracks", len(next.IDs()))
			}
		}
	}()

	// Periodic background tasks.
	go runEvery(ctx, *saveEvery, func() { mgr.SaveAllDirty(context.Background()) })
	go runEvery(ctx, *sweepEvery, mgr.SweepTrackers)
	go runEvery(ctx, *flushEvery, func() { batcher.Flush(*flushActors) })
	go runEvery(ctx, time.Second, stats.Tick)
	go func() {
		// First refresh shortly after boot, then on the slow cadence.
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
		refresh := func() {
			rctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := lb.Refresh(rctx); err != nil {
				logger.Printf("leaderboard refresh: %v", err)
			}
		}
		refresh()
		t := time.NewTicker(*lbEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				refresh()
			}
		}
	}()

	go func() {
		logger.Printf("listening on %s", *addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	// Drain order: no more events, then side effects, then money, then state.
	effects.Close()
	batcher.FlushAll()
	mgr.Shutdown(shutdownCtx)
	if err := rewards.Close(); err != nil {
		logger.Printf("close reward log: %v", err)
	}
	if err := store.Close(); err != nil {
		logger.Printf("close store: %v", err)
	}
	logger.Printf("bye")
}

func runEvery(ctx context.Context, every time.Duration, fn func()) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}
