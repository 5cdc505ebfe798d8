package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- shared fakes ----

type fakeBroker struct {
	mu        sync.Mutex
	quotes    map[string]Quote
	quoteErr  map[string]error
	orderErr  error
	fillPrice float64
	fetchWait time.Duration

	placed        []*PlacedOrder
	inFlight      int
	maxInFlight   int
}

func (f *fakeBroker) Name() string { return "fake" }

func (f *fakeBroker) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	if f.fetchWait > 0 {
		time.Sleep(f.fetchWait)
	}
	f.mu.Lock()
	f.inFlight--
	err := f.quoteErr[symbol]
	q := f.quotes[symbol]
	f.mu.Unlock()
	if err != nil {
		return Quote{}, err
	}
	return q, nil
}

func (f *fakeBroker) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty int) (*PlacedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	p := &PlacedOrder{
		Ref: "ord-" + symbol, Symbol: symbol, Side: side,
		Price: f.fillPrice, Qty: qty, CreateTime: time.Now().UTC(),
	}
	f.placed = append(f.placed, p)
	return p, nil
}

type captureNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *captureNotifier) Notify(text string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, text)
	n.mu.Unlock()
}

func (n *captureNotifier) count(substr string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.msgs {
		if strings.Contains(m, substr) {
			c++
		}
	}
	return c
}

// ---- engine harness ----

type engine struct {
	cfg      Config
	ledger   *FileLedger
	rs       *RunState
	trader   *Trader
	notifier *captureNotifier
}

func newTestEngine(t *testing.T, dryRun bool, broker Broker, at time.Time) *engine {
	t.Helper()
	ledger, err := NewFileLedger(t.TempDir())
	require.NoError(t, err)

	cfg := Config{
		Instruments:  []Instrument{testInstrument},
		DryRun:       dryRun,
		Timezone:     "UTC",
		PollInterval: time.Second,
		QuoteTimeout: time.Second,
		OrderTimeout: time.Second,
		QuoteFanout:  4,
		DQAlertTicks: 3,
	}
	rs := NewRunState(cfg.Timezone, at, ledger)
	notifier := &captureNotifier{}
	exec := NewExecutor(broker, dryRun, cfg.OrderTimeout)
	return &engine{
		cfg:      cfg,
		ledger:   ledger,
		rs:       rs,
		trader:   NewTrader(cfg, ledger, exec, notifier, rs),
		notifier: notifier,
	}
}

func quoteAt(symbol string, last, prevClose float64, at time.Time) Quote {
	return Quote{Symbol: symbol, LastPrice: last, PrevClose: prevClose, Time: at}
}

func buyFills(t *testing.T, l *FileLedger) []TradeRecord {
	t.Helper()
	trades, err := l.LastTrades(0)
	require.NoError(t, err)
	var out []TradeRecord
	for _, r := range trades {
		if r.Side == SideBuy && r.Outcome == OutcomeFilled {
			out = append(out, r)
		}
	}
	return out
}

// ---- tests ----

func TestGapBuyCreatesPosition(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	e := newTestEngine(t, true, &fakeBroker{}, now)
	ctx := context.Background()

	// prev close 100, LTP 97.5 → gap −2.5% ≤ −2% → buy; paper fill at 97.5
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 97.5, 100, now), now)

	day := e.rs.Day()
	positions := e.ledger.Positions(day)
	require.Len(t, positions, 1)
	p := positions[0]
	assert.Equal(t, StatusBought, p.Status)
	assert.InDelta(t, 97.5, p.BuyPrice, 1e-9)
	assert.InDelta(t, 100.425, p.Target, 1e-9)
	assert.InDelta(t, 92.625, p.LossAlert, 1e-9)
	assert.True(t, e.rs.Entered("NIFTYBEES"))

	fills := buyFills(t, e.ledger)
	require.Len(t, fills, 1)
	assert.Equal(t, "paper", fills[0].Mode)
	assert.True(t, strings.HasPrefix(fills[0].OrderRef, "paper-"))
	assert.Equal(t, 1, e.notifier.count("[DRY_RUN] Bought"))
}

func TestOneTradePerSymbolPerDay(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	e := newTestEngine(t, true, &fakeBroker{}, now)
	ctx := context.Background()

	gap := quoteAt("NIFTYBEES", 97.5, 100, now)
	e.trader.EvaluateSymbol(ctx, testInstrument, gap, now)
	e.trader.EvaluateSymbol(ctx, testInstrument, gap, now)
	require.Len(t, buyFills(t, e.ledger), 1, "overlapping triggers must yield one buy")

	// Exit at target, then gap down again: still no re-entry today.
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 100.5, 100, now), now)
	positions := e.ledger.Positions(e.rs.Day())
	require.Len(t, positions, 1)
	assert.Equal(t, StatusTargetHit, positions[0].Status)

	e.trader.EvaluateSymbol(ctx, testInstrument, gap, now)
	assert.Len(t, buyFills(t, e.ledger), 1)
}

func TestFailedBuyStaysWatchingAndRetriesNextTick(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	broker := &fakeBroker{orderErr: errors.New("connection reset")}
	e := newTestEngine(t, false, broker, now) // live mode
	ctx := context.Background()

	gap := quoteAt("NIFTYBEES", 97.5, 100, now)
	e.trader.EvaluateSymbol(ctx, testInstrument, gap, now)

	assert.Empty(t, e.ledger.Positions(e.rs.Day()), "failed buy must not create a position")
	trades, err := e.ledger.LastTrades(0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, OutcomeError, trades[0].Outcome)
	assert.Equal(t, "live", trades[0].Mode)

	// Broker recovers; the same gap re-triggers on the next tick.
	broker.mu.Lock()
	broker.orderErr = nil
	broker.fillPrice = 97.4
	broker.mu.Unlock()
	e.trader.EvaluateSymbol(ctx, testInstrument, gap, now.Add(5*time.Second))

	positions := e.ledger.Positions(e.rs.Day())
	require.Len(t, positions, 1)
	assert.InDelta(t, 97.4, positions[0].BuyPrice, 1e-9, "position uses the broker fill price")
}

func TestKillSwitchHaltsEntriesNotMonitoring(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	e := newTestEngine(t, true, &fakeBroker{}, now)
	ctx := context.Background()

	e.rs.Halt()
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 97.5, 100, now), now)
	assert.Empty(t, e.ledger.Positions(e.rs.Day()), "halted engine must not enter")

	// Enter while resumed, halt again: the open position still exits.
	e.rs.Resume()
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 97.5, 100, now), now)
	e.rs.Halt()
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 100.5, 100, now), now)

	positions := e.ledger.Positions(e.rs.Day())
	require.Len(t, positions, 1)
	assert.Equal(t, StatusTargetHit, positions[0].Status)
}

func TestLossAlertFiresOnceThenTargetStillExits(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	e := newTestEngine(t, true, &fakeBroker{}, now)
	ctx := context.Background()

	// Buy at 95 (gap −5%); alert line 90.25, target 97.85.
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 95, 100, now), now)

	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 90, 100, now), now)
	assert.Equal(t, 1, e.notifier.count("STOP LOSS ALERT"))

	// Further drops stay silent.
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 89, 100, now), now)
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 85, 100, now), now)
	assert.Equal(t, 1, e.notifier.count("STOP LOSS ALERT"))

	// Recovery past the target exits despite the earlier alert.
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 98, 100, now), now)
	positions := e.ledger.Positions(e.rs.Day())
	require.Len(t, positions, 1)
	assert.Equal(t, StatusTargetHit, positions[0].Status)
	assert.Equal(t, 1, e.notifier.count("TARGET HIT"))
}

func TestDayRolloverAllowsFreshEntry(t *testing.T) {
	d1 := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	d2 := d1.Add(24 * time.Hour)
	e := newTestEngine(t, true, &fakeBroker{}, d1)
	ctx := context.Background()

	gap1 := quoteAt("NIFTYBEES", 97.5, 100, d1)
	e.trader.EvaluateSymbol(ctx, testInstrument, gap1, d1)
	require.Len(t, buyFills(t, e.ledger), 1)

	_, rolled := e.rs.RolloverIfNeeded(e.cfg.Timezone, d2, e.ledger)
	require.True(t, rolled)
	e.trader.ReloadDay()

	// Day D's BOUGHT position does not block day D+1.
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 95.2, 98, d2), d2)
	assert.Len(t, buyFills(t, e.ledger), 2)
	assert.Len(t, e.ledger.Positions(tradingDay("UTC", d2)), 1)
	assert.Len(t, e.ledger.Positions(tradingDay("UTC", d1)), 1)
}

func TestDataQualityStreakEscalatesOnce(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	e := newTestEngine(t, true, &fakeBroker{}, now)
	ctx := context.Background()

	bad := quoteAt("NIFTYBEES", 97.5, 0, now) // missing previous close
	for i := 0; i < 5; i++ {
		e.trader.EvaluateSymbol(ctx, testInstrument, bad, now)
	}
	assert.Equal(t, 1, e.notifier.count("DATA QUALITY"), "escalate once at the configured streak")
	assert.Empty(t, e.ledger.Positions(e.rs.Day()))

	// A good quote resets the streak.
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 99.5, 100, now), now)
	for i := 0; i < 3; i++ {
		e.trader.EvaluateSymbol(ctx, testInstrument, bad, now)
	}
	assert.Equal(t, 2, e.notifier.count("DATA QUALITY"))
}

func TestStatusSnapshotSafeDuringEvaluation(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	e := newTestEngine(t, true, &fakeBroker{}, now)
	ctx := context.Background()

	// Open a position, then hammer Status() from another goroutine while
	// the evaluation path keeps mutating the same record. Run with -race.
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 95, 100, now), now)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				st := e.trader.Status()
				for _, p := range st.Positions {
					assert.Equal(t, "NIFTYBEES", p.Symbol)
				}
			}
		}
	}()

	for i := 0; i < 200; i++ {
		// Price path crosses the alert line and then the target, exercising
		// LastPrice refreshes and both status transitions.
		e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 94-float64(i%6), 100, now), now)
	}
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 98, 100, now), now)
	close(done)
	wg.Wait()

	positions := e.ledger.Positions(e.rs.Day())
	require.Len(t, positions, 1)
	assert.Equal(t, StatusTargetHit, positions[0].Status)
}

// failingUpdateLedger lets a test fail UpdatePosition on demand.
type failingUpdateLedger struct {
	*FileLedger
	failUpdates bool
}

func (l *failingUpdateLedger) UpdatePosition(p *Position) error {
	if l.failUpdates {
		return errors.New("disk full")
	}
	return l.FileLedger.UpdatePosition(p)
}

func TestLossAlertSentEvenWhenPersistFails(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	fl, err := NewFileLedger(t.TempDir())
	require.NoError(t, err)
	ledger := &failingUpdateLedger{FileLedger: fl}

	cfg := Config{
		Instruments:  []Instrument{testInstrument},
		DryRun:       true,
		Timezone:     "UTC",
		OrderTimeout: time.Second,
		DQAlertTicks: 3,
	}
	rs := NewRunState(cfg.Timezone, now, ledger)
	notifier := &captureNotifier{}
	trader := NewTrader(cfg, ledger, NewExecutor(&fakeBroker{}, true, cfg.OrderTimeout), notifier, rs)
	ctx := context.Background()

	trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 95, 100, now), now)

	ledger.failUpdates = true
	trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 90, 100, now), now)

	// The operator hears about the drawdown and about the write failure.
	assert.Equal(t, 1, notifier.count("STOP LOSS ALERT"))
	assert.Equal(t, 1, notifier.count("ledger update failed"))

	// And the alert stays one-shot on further drops.
	trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 88, 100, now), now)
	assert.Equal(t, 1, notifier.count("STOP LOSS ALERT"))
}

func TestQuarantinedSymbolNeverEnters(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	e := newTestEngine(t, true, &fakeBroker{}, now)
	ctx := context.Background()

	e.rs.Quarantine("NIFTYBEES")
	e.trader.EvaluateSymbol(ctx, testInstrument, quoteAt("NIFTYBEES", 90, 100, now), now)
	assert.Empty(t, e.ledger.Positions(e.rs.Day()))
}
