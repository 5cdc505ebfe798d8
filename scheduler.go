// FILE: scheduler.go
// Package main – Polling scheduler: the fixed-cadence orchestration loop.
//
// Each tick:
//   (a) check trading-day rollover and rebuild the day-scoped caches
//   (b) fetch quotes for the whole watchlist with bounded concurrency,
//       each fetch under its own timeout
//   (c) feed the results through the trader, one symbol at a time, so all
//       decision-making and state mutation stays on a single goroutine
//
// One slow or failing symbol never starves the rest: its fetch times out,
// it is skipped for the tick, and the next tick is its retry.

package main

import (
	"context"
	"log"
	"sync"
	"time"
)

// Scheduler drives the engine at a configured interval.
type Scheduler struct {
	cfg    Config
	broker Broker
	trader *Trader
	rs     *RunState
	ledger Ledger
}

func NewScheduler(cfg Config, broker Broker, trader *Trader, rs *RunState, ledger Ledger) *Scheduler {
	return &Scheduler{cfg: cfg, broker: broker, trader: trader, rs: rs, ledger: ledger}
}

// Run blocks until ctx is cancelled. The first tick fires immediately.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("scheduler: %s broker, %d symbols, every %s (mode=%s)",
		s.broker.Name(), len(s.cfg.Instruments), s.cfg.PollInterval, s.cfg.Mode())

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: shutdown")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

type quoteResult struct {
	quote Quote
	err   error
}

// tick runs one full evaluation pass over the watchlist.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	mtxTicks.Inc()
	SetKillSwitchMetric(s.rs.Halted())

	if prev, rolled := s.rs.RolloverIfNeeded(s.cfg.Timezone, now, s.ledger); rolled {
		log.Printf("[DAY] rollover %s -> %s; entry guard reset", prev, s.rs.Day())
		s.trader.ReloadDay()
	}

	results := s.fetchAll(ctx)

	// Sequential decision path: one mutation point for the whole watchlist.
	for i, in := range s.cfg.Instruments {
		if ctx.Err() != nil {
			return
		}
		r := results[i]
		if r.err != nil {
			mtxQuoteErrors.WithLabelValues(in.Symbol).Inc()
			log.Printf("[TICK] quote %s: %v (skipped)", in.Symbol, r.err)
			continue
		}
		s.trader.EvaluateSymbol(ctx, in, r.quote, now)
	}
}

// fetchAll issues the per-symbol quote fetches with bounded fanout and
// joins them before evaluation starts.
func (s *Scheduler) fetchAll(ctx context.Context) []quoteResult {
	results := make([]quoteResult, len(s.cfg.Instruments))
	sem := make(chan struct{}, s.cfg.QuoteFanout)
	var wg sync.WaitGroup

	for i, in := range s.cfg.Instruments {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			qctx, cancel := context.WithTimeout(ctx, s.cfg.QuoteTimeout)
			defer cancel()
			q, err := s.broker.FetchQuote(qctx, symbol)
			results[i] = quoteResult{quote: q, err: err}
		}(i, in.Symbol)
	}
	wg.Wait()
	return results
}
