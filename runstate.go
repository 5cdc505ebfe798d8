// FILE: runstate.go
// Package main – Process-wide engine run state.
//
// RunState is a read-optimized cache derived from the ledger: the current
// trading-day key, the symbols already entered today, and the symbols
// quarantined by ledger conflicts. It is rebuilt from the ledger at startup
// and on every day rollover; it is never authoritative on its own.
//
// The kill-switch (Halted) is an operator flag toggled via the ops HTTP
// endpoints. It suppresses new BUY intents only; monitoring of open
// positions continues while it is set.

package main

import (
	"sync"
	"sync/atomic"
	"time"
)

// tradingDay returns the day key (YYYY-MM-DD) for now in tz. An unknown tz
// falls back to UTC.
func tradingDay(tz string, now time.Time) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return now.In(loc).Format("2006-01-02")
}

// RunState holds per-run engine state shared across ticks.
type RunState struct {
	halted atomic.Bool

	mu          sync.Mutex
	day         string
	entered     map[string]bool // symbols with a position record today
	quarantined map[string]bool // symbols excluded after ledger conflicts
}

// NewRunState derives the initial state for today from the ledger.
func NewRunState(tz string, now time.Time, ledger Ledger) *RunState {
	rs := &RunState{}
	rs.rebuild(tradingDay(tz, now), ledger)
	return rs
}

// rebuild re-derives the caches for a day key from the ledger.
func (rs *RunState) rebuild(day string, ledger Ledger) {
	entered := make(map[string]bool)
	for _, p := range ledger.Positions(day) {
		entered[p.Symbol] = true
	}
	quarantined := make(map[string]bool)
	for _, sym := range ledger.Conflicted(day) {
		quarantined[sym] = true
	}
	rs.mu.Lock()
	rs.day = day
	rs.entered = entered
	rs.quarantined = quarantined
	rs.mu.Unlock()
}

// RolloverIfNeeded resets day-scoped caches when the trading day advances.
// Returns the previous day key and true when a rollover happened.
func (rs *RunState) RolloverIfNeeded(tz string, now time.Time, ledger Ledger) (string, bool) {
	day := tradingDay(tz, now)
	rs.mu.Lock()
	prev := rs.day
	rs.mu.Unlock()
	if day == prev {
		return prev, false
	}
	rs.rebuild(day, ledger)
	return prev, true
}

// Day returns the current trading-day key.
func (rs *RunState) Day() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.day
}

// Entered reports whether the symbol already has a position record today.
func (rs *RunState) Entered(symbol string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.entered[symbol]
}

// MarkEntered records a successful entry in the fast-lookup cache.
func (rs *RunState) MarkEntered(symbol string) {
	rs.mu.Lock()
	rs.entered[symbol] = true
	rs.mu.Unlock()
}

// Quarantined reports whether the symbol is excluded from automated entries.
func (rs *RunState) Quarantined(symbol string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.quarantined[symbol]
}

// Quarantine excludes a symbol for the rest of the run (ledger conflict).
func (rs *RunState) Quarantine(symbol string) {
	rs.mu.Lock()
	rs.quarantined[symbol] = true
	rs.mu.Unlock()
}

// Halt sets the kill-switch: no new BUY intents until Resume.
func (rs *RunState) Halt() { rs.halted.Store(true) }

// Resume clears the kill-switch.
func (rs *RunState) Resume() { rs.halted.Store(false) }

// Halted reads the kill-switch. Checked at the top of every tick and again
// before each BUY dispatch.
func (rs *RunState) Halted() bool { return rs.halted.Load() }
