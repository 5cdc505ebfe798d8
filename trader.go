// FILE: trader.go
// Package main – Decision engine: one symbol, one quote, one decision.
//
// What's here:
//   • Trader: holds config, ledger, executor, notifier, and run state
//   • EvaluateSymbol(): the per-symbol decision path driven by the scheduler
//   • The one-trade-per-day guard and the ledger-conflict quarantine
//
// Concurrency design:
//   - The scheduler parallelises quote fetches but funnels every call to
//     EvaluateSymbol through one goroutine, so all decision-making and
//     state mutation for the watchlist is serialized. The trader mutex
//     guards the caches and every Position field write against the ops
//     /status reader, which copies the shared structs.
//
// Ordering:
//   - A BUY is executed first and the position is created from the
//     executed fill price; a failed buy leaves the symbol unentered and
//     eligible to re-trigger next tick.
//   - A SELL transition is persisted only after a filled outcome, so a
//     sell trade record can never precede its buy and a failed sell is
//     retried on the next tick.

package main

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Trader owns the position lifecycle for the whole watchlist.
type Trader struct {
	cfg      Config
	ledger   Ledger
	exec     *Executor
	notifier Notifier
	rs       *RunState

	mu       sync.Mutex
	open     map[string]*Position // today's position records, by symbol
	dqStreak map[string]int       // consecutive data-quality skips, by symbol
}

func NewTrader(cfg Config, ledger Ledger, exec *Executor, notifier Notifier, rs *RunState) *Trader {
	t := &Trader{
		cfg:      cfg,
		ledger:   ledger,
		exec:     exec,
		notifier: notifier,
		rs:       rs,
		open:     make(map[string]*Position),
		dqStreak: make(map[string]int),
	}
	t.ReloadDay()
	return t
}

// ReloadDay re-derives the day-scoped position cache from the ledger.
// Called at startup and after every trading-day rollover.
func (t *Trader) ReloadDay() {
	day := t.rs.Day()
	open := make(map[string]*Position)
	for _, p := range t.ledger.Positions(day) {
		open[p.Symbol] = p
	}
	t.mu.Lock()
	t.open = open
	t.dqStreak = make(map[string]int)
	t.mu.Unlock()
	t.updateOpenGauge()

	for _, sym := range t.ledger.Conflicted(day) {
		t.rs.Quarantine(sym)
		t.notifier.Notify(fmt.Sprintf(
			"LEDGER CONFLICT: %s has duplicate open positions for %s; excluded from trading until resolved", sym, day))
	}
}

// modeTag prefixes every notification so paper and live outcomes are never
// confused in review.
func (t *Trader) modeTag() string {
	if t.cfg.DryRun {
		return "[DRY_RUN]"
	}
	return "[LIVE]"
}

// EvaluateSymbol runs the full decision path for one quote. Must be called
// from the scheduler's single evaluation goroutine.
func (t *Trader) EvaluateSymbol(ctx context.Context, in Instrument, q Quote, now time.Time) {
	// Ledger conflicts are fatal to the symbol for the run: no entries, no
	// automated exits, until an operator resolves the snapshot.
	if t.rs.Quarantined(in.Symbol) {
		return
	}
	day := t.rs.Day()

	t.mu.Lock()
	pos := t.open[in.Symbol]
	t.mu.Unlock()

	if pos != nil {
		t.monitorPosition(ctx, pos, q, now)
		return
	}
	t.considerEntry(ctx, in, q, day, now)
}

// considerEntry handles the WATCHING → BOUGHT path.
func (t *Trader) considerEntry(ctx context.Context, in Instrument, q Quote, day string, now time.Time) {
	// One entry per (symbol, day), ever.
	if t.rs.Entered(in.Symbol) {
		return
	}

	dec := evalGap(q.LastPrice, q.PrevClose, in.BuyGapPct)
	if dec.Quality != dqOK {
		t.noteDataQuality(in.Symbol, dec.Quality)
		return
	}
	t.clearDataQuality(in.Symbol)
	if !dec.Trigger {
		return
	}

	// Kill-switch: read again at the dispatch point, not just at tick top.
	if t.rs.Halted() {
		return
	}

	mtxDecisions.WithLabelValues("buy").Inc()
	rec := t.exec.Execute(ctx, OrderIntent{
		Symbol:   in.Symbol,
		Side:     SideBuy,
		Qty:      in.Qty,
		RefPrice: q.LastPrice,
		Day:      day,
	})
	t.recordTrade(rec)

	if rec.Outcome != OutcomeFilled {
		mtxOrderErrors.WithLabelValues(rec.Mode, string(SideBuy)).Inc()
		t.notifier.Notify(fmt.Sprintf("%s BUY %s for %d x %s: %s",
			t.modeTag(), rec.Outcome, in.Qty, in.Symbol, rec.Note))
		// Still WATCHING; the gap may re-trigger next tick.
		return
	}

	pos := newPosition(in.Symbol, day, in, rec.Price, now)
	pos.LastPrice = q.LastPrice
	if err := t.ledger.CreatePosition(pos); err != nil {
		// A second open record for today violates the audit invariant;
		// stop trading the symbol rather than silently picking one.
		t.rs.Quarantine(in.Symbol)
		t.notifier.Notify(fmt.Sprintf("LEDGER CONFLICT: create position %s/%s: %v; symbol excluded", in.Symbol, day, err))
		return
	}
	t.rs.MarkEntered(in.Symbol)
	t.mu.Lock()
	t.open[in.Symbol] = pos
	t.mu.Unlock()
	t.updateOpenGauge()

	mtxOrders.WithLabelValues(rec.Mode, string(SideBuy)).Inc()
	t.notifier.Notify(fmt.Sprintf("%s Bought %d x %s at %.2f (gap %.2f%%); target %.2f, loss alert %.2f",
		t.modeTag(), pos.Qty, pos.Symbol, pos.BuyPrice, dec.GapPct, pos.Target, pos.LossAlert))
}

// monitorPosition handles BOUGHT/ALERTED positions on a price update.
// Position structs in t.open are shared with the /status snapshot, so
// every field write happens under t.mu.
func (t *Trader) monitorPosition(ctx context.Context, pos *Position, q Quote, now time.Time) {
	if pos.Status.Terminal() {
		return
	}
	if q.LastPrice > 0 {
		t.mu.Lock()
		pos.LastPrice = q.LastPrice
		t.mu.Unlock()
	}

	switch evaluatePosition(pos, q.LastPrice) {
	case evTargetHit:
		t.exitAtTarget(ctx, pos, q, now)
	case evLossAlert:
		mtxDecisions.WithLabelValues("loss_alert").Inc()
		t.mu.Lock()
		pos.markAlerted(now)
		t.mu.Unlock()
		// The operator hears about the drawdown even when the ledger write
		// fails; the alert is risk surfacing, not bookkeeping.
		lossPct := (q.LastPrice - pos.BuyPrice) / pos.BuyPrice * 100
		t.notifier.Notify(fmt.Sprintf("%s STOP LOSS ALERT %s: LTP %.2f <= %.2f (%.2f%%). No auto-sell; consider selling %d manually.",
			t.modeTag(), pos.Symbol, q.LastPrice, pos.LossAlert, lossPct, pos.Qty))
		if err := t.ledger.UpdatePosition(pos); err != nil {
			t.notifier.Notify(fmt.Sprintf("ledger update failed for %s: %v", pos.Symbol, err))
		}
	default:
		// Keep last-evaluated price durable, best effort.
		_ = t.ledger.UpdatePosition(pos)
	}
}

// exitAtTarget places the full-quantity sell and, on fill, retires the
// position for the day.
func (t *Trader) exitAtTarget(ctx context.Context, pos *Position, q Quote, now time.Time) {
	mtxDecisions.WithLabelValues("target_hit").Inc()
	rec := t.exec.Execute(ctx, OrderIntent{
		Symbol:   pos.Symbol,
		Side:     SideSell,
		Qty:      pos.Qty,
		RefPrice: q.LastPrice,
		Day:      pos.Day,
	})
	t.recordTrade(rec)

	if rec.Outcome != OutcomeFilled {
		mtxOrderErrors.WithLabelValues(rec.Mode, string(SideSell)).Inc()
		t.notifier.Notify(fmt.Sprintf("%s SELL %s for %d x %s: %s (will retry next tick)",
			t.modeTag(), rec.Outcome, pos.Qty, pos.Symbol, rec.Note))
		return
	}

	t.mu.Lock()
	pos.markTargetHit(now)
	t.mu.Unlock()
	if err := t.ledger.UpdatePosition(pos); err != nil {
		t.notifier.Notify(fmt.Sprintf("ledger update failed for %s: %v", pos.Symbol, err))
		return
	}
	t.updateOpenGauge()

	mtxOrders.WithLabelValues(rec.Mode, string(SideSell)).Inc()
	profit := (rec.Price - pos.BuyPrice) * float64(pos.Qty)
	t.notifier.Notify(fmt.Sprintf("%s TARGET HIT %s: sold %d at %.2f (bought %.2f), P&L %.2f",
		t.modeTag(), pos.Symbol, pos.Qty, rec.Price, pos.BuyPrice, profit))
}

// recordTrade appends the audit row; a ledger failure here is loud but does
// not halt the engine.
func (t *Trader) recordTrade(rec TradeRecord) {
	if err := t.ledger.AppendTrade(rec); err != nil {
		t.notifier.Notify(fmt.Sprintf("trade log write failed (%s %s): %v", rec.Side, rec.Symbol, err))
	}
}

// noteDataQuality counts consecutive bad ticks and escalates once the
// configured streak is reached.
func (t *Trader) noteDataQuality(symbol string, q DataQuality) {
	mtxDQSkips.WithLabelValues(q.String()).Inc()
	t.mu.Lock()
	t.dqStreak[symbol]++
	streak := t.dqStreak[symbol]
	t.mu.Unlock()
	if t.cfg.DQAlertTicks > 0 && streak == t.cfg.DQAlertTicks {
		t.notifier.Notify(fmt.Sprintf("DATA QUALITY: %s skipped %d consecutive ticks (%s)", symbol, streak, q))
	}
}

func (t *Trader) clearDataQuality(symbol string) {
	t.mu.Lock()
	delete(t.dqStreak, symbol)
	t.mu.Unlock()
}

func (t *Trader) updateOpenGauge() {
	t.mu.Lock()
	n := 0
	for _, p := range t.open {
		if !p.Status.Terminal() {
			n++
		}
	}
	t.mu.Unlock()
	mtxOpenPositions.Set(float64(n))
}

// EngineStatus is the /status read surface.
type EngineStatus struct {
	Day       string      `json:"day"`
	Mode      string      `json:"mode"`
	Halted    bool        `json:"halted"`
	Watching  int         `json:"watching"`
	Positions []*Position `json:"positions"`
}

// Status snapshots the engine for the ops endpoint.
func (t *Trader) Status() EngineStatus {
	t.mu.Lock()
	positions := make([]*Position, 0, len(t.open))
	for _, p := range t.open {
		cp := *p
		positions = append(positions, &cp)
	}
	t.mu.Unlock()
	return EngineStatus{
		Day:       t.rs.Day(),
		Mode:      t.cfg.Mode(),
		Halted:    t.rs.Halted(),
		Watching:  len(t.cfg.Instruments),
		Positions: positions,
	}
}
