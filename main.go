// FILE: main.go
// Package main – Program entrypoint and ops HTTP server.
//
// Boot sequence:
//   1) loadBotEnv()              – read .env (no shell exports required)
//   2) cfg := loadConfigFromEnv()– build runtime Config + watchlist
//   3) open the ledger           – fail closed if the snapshot is unreadable
//   4) wire broker/executor/trader/scheduler
//   5) start the ops server on cfg.Port (/healthz /metrics /status /halt /resume)
//   6) run the polling loop, or a CSV replay
//
// Flags:
//   -replay <csv>     Feed recorded quotes (time,symbol,last,prev_close)
//                     through the engine instead of polling
//   -live             Run the polling loop (default)
//   -interval <sec>   Override POLL_INTERVAL_SECONDS
//
// Example:
//   go run . -live -interval 5

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// ---- Flags ----
	var replayCSV string
	var live bool
	var intervalSec int
	flag.StringVar(&replayCSV, "replay", "", "Path to quote CSV (time,symbol,last,prev_close)")
	flag.BoolVar(&live, "live", false, "Run the polling loop (ignores -replay)")
	flag.IntVar(&intervalSec, "interval", 0, "Poll interval in seconds (overrides env)")
	flag.Parse()

	// ---- Environment & Config ----
	loadBotEnv()
	cfg, err := loadConfigFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if intervalSec > 0 {
		cfg.PollInterval = time.Duration(intervalSec) * time.Second
	}
	if replayCSV != "" && !live {
		// Replay never places real orders.
		cfg.DryRun = true
	}

	// ---- Ledger (single source of truth; fail closed) ----
	ledger, err := NewFileLedger(cfg.LedgerDir)
	if err != nil {
		log.Fatalf("ledger: %v", err)
	}

	// ---- Broker wiring ----
	var broker Broker
	apiKey := getEnv("KITE_API_KEY", "")
	accessToken := getEnv("KITE_ACCESS_TOKEN", "")
	switch {
	case apiKey != "" && accessToken != "":
		broker = NewKiteBroker(apiKey, accessToken)
	case cfg.DryRun:
		broker = NewPaperBroker()
	default:
		log.Fatalf("live mode requires KITE_API_KEY and KITE_ACCESS_TOKEN")
	}

	notifier := newNotifierFromConfig(cfg)
	rs := NewRunState(cfg.Timezone, time.Now(), ledger)
	exec := NewExecutor(broker, cfg.DryRun, cfg.OrderTimeout)
	trader := NewTrader(cfg, ledger, exec, notifier, rs)

	log.Printf("[BOOT] day=%s mode=%s broker=%s symbols=%d qty=%d gap=%.2f%% target=%.2f%% alert=%.2f%%",
		rs.Day(), cfg.Mode(), broker.Name(), len(cfg.Instruments),
		cfg.QtyPerTrade, cfg.BuyGapPct, cfg.SellTargetPct, cfg.LossAlertPct)

	// ---- Ops HTTP server ----
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(trader.Status())
	})
	mux.HandleFunc("/halt", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		rs.Halt()
		SetKillSwitchMetric(true)
		log.Printf("[HALT] kill-switch set; new entries suppressed")
		notifier.Notify("KILL-SWITCH SET: no new entries until /resume. Open positions remain monitored.")
		_, _ = w.Write([]byte("halted\n"))
	})
	mux.HandleFunc("/resume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		rs.Resume()
		SetKillSwitchMetric(false)
		log.Printf("[HALT] kill-switch cleared")
		notifier.Notify("KILL-SWITCH CLEARED: entries re-enabled.")
		_, _ = w.Write([]byte("resumed\n"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		log.Printf("serving ops on :%d (/metrics /status /halt /resume)", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	// ---- Run selected mode ----
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if replayCSV != "" && !live {
		runReplay(ctx, replayCSV, trader, rs, ledger, cfg)
	} else {
		NewScheduler(cfg, broker, trader, rs, ledger).Run(ctx)
	}

	// ---- Graceful shutdown for the ops server ----
	shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	_ = srv.Shutdown(shutdownCtx)
}
