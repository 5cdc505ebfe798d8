// FILE: ledger.go
// Package main – Durable ledger: positions snapshot + append-only trade log.
//
// The ledger is the single source of truth for Position and TradeRecord
// state. Positions live in a JSON snapshot rewritten atomically on every
// mutation (tmp file + fsync + rename, parent dir synced); trade records
// append to a CSV with a header row and are never mutated.
//
// Contract highlights:
//   • CreatePosition is create-if-absent: a second create for the same
//     (symbol, day) fails with ErrPositionExists.
//   • Loading detects duplicate non-terminal positions for one key and
//     reports them so the engine can quarantine the symbol.
//   • All writes go through one mutex; trade records for a symbol are
//     appended in evaluation order.

package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TradeOutcome classifies how an order intent ended.
type TradeOutcome string

const (
	OutcomeFilled   TradeOutcome = "filled"
	OutcomeRejected TradeOutcome = "rejected"
	OutcomeError    TradeOutcome = "error"
)

// TradeRecord is one immutable audit entry.
type TradeRecord struct {
	ID       string
	Time     time.Time
	Day      string
	Symbol   string
	Side     OrderSide
	Qty      int
	Price    float64
	Mode     string // paper | live
	Outcome  TradeOutcome
	OrderRef string // empty when simulated-failed or errored
	Note     string
}

// ErrPositionExists is returned by CreatePosition when a position for the
// same (symbol, day) is already recorded.
var ErrPositionExists = errors.New("position already exists for symbol/day")

// Ledger is the persistence surface the engine mutates through.
type Ledger interface {
	// Positions returns every position recorded for a trading day.
	Positions(day string) []*Position
	// Conflicted returns the symbols whose day records violate the
	// one-open-position invariant; they must not trade until an operator
	// resolves the snapshot.
	Conflicted(day string) []string
	CreatePosition(p *Position) error
	UpdatePosition(p *Position) error
	AppendTrade(r TradeRecord) error
	LastTrades(n int) ([]TradeRecord, error)
}

// positionKey identifies one (symbol, trading day) record.
func positionKey(symbol, day string) string { return symbol + "|" + day }

// FileLedger keeps positions in <dir>/positions.json and trades in
// <dir>/trades.csv.
type FileLedger struct {
	dir string

	mu         sync.Mutex
	positions  map[string]*Position // key → record
	conflicted map[string][]string  // day → symbols with duplicate open rows
}

// NewFileLedger opens (or creates) the ledger directory and loads the
// position snapshot. An unreadable snapshot is an error: the engine must
// fail closed rather than start with an unknown position set.
func NewFileLedger(dir string) (*FileLedger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger dir: %w", err)
	}
	l := &FileLedger{
		dir:        dir,
		positions:  make(map[string]*Position),
		conflicted: make(map[string][]string),
	}
	if err := l.loadPositions(); err != nil {
		return nil, err
	}
	if err := l.ensureTradeLog(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLedger) positionsPath() string { return filepath.Join(l.dir, "positions.json") }
func (l *FileLedger) tradesPath() string    { return filepath.Join(l.dir, "trades.csv") }

func (l *FileLedger) loadPositions() error {
	raw, err := os.ReadFile(l.positionsPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ledger read: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	var list []*Position
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("ledger parse: %w", err)
	}
	for _, p := range list {
		key := positionKey(p.Symbol, p.Day)
		prev, ok := l.positions[key]
		if ok && !prev.Status.Terminal() && !p.Status.Terminal() {
			// Both rows claim to be open. Keep the first, flag the symbol.
			l.conflicted[p.Day] = append(l.conflicted[p.Day], p.Symbol)
			continue
		}
		if !ok || prev.Status.Terminal() {
			l.positions[key] = p
		}
	}
	return nil
}

func (l *FileLedger) ensureTradeLog() error {
	path := l.tradesPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("trade log stat: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("trade log create: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(tradeHeader); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

var tradeHeader = []string{"id", "ts", "day", "symbol", "side", "qty", "price", "mode", "outcome", "order_ref", "note"}

// Positions returns the recorded positions for a day, any status.
func (l *FileLedger) Positions(day string) []*Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Position
	for _, p := range l.positions {
		if p.Day == day {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

// Conflicted returns symbols with duplicate open rows for a day.
func (l *FileLedger) Conflicted(day string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.conflicted[day]...)
}

// CreatePosition records a new position iff none exists for its key.
func (l *FileLedger) CreatePosition(p *Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := positionKey(p.Symbol, p.Day)
	if _, ok := l.positions[key]; ok {
		return ErrPositionExists
	}
	cp := *p
	l.positions[key] = &cp
	return l.flushPositions()
}

// UpdatePosition overwrites the record for the position's key.
func (l *FileLedger) UpdatePosition(p *Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := positionKey(p.Symbol, p.Day)
	if _, ok := l.positions[key]; !ok {
		return fmt.Errorf("update of unknown position %s", key)
	}
	cp := *p
	l.positions[key] = &cp
	return l.flushPositions()
}

// flushPositions rewrites the snapshot atomically. Caller holds l.mu.
func (l *FileLedger) flushPositions() error {
	list := make([]*Position, 0, len(l.positions))
	for _, p := range l.positions {
		list = append(list, p)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(l.positionsPath(), data, 0o644)
}

// AppendTrade writes one immutable audit row. A missing ID is filled in.
func (l *FileLedger) AppendTrade(r TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	f, err := os.OpenFile(l.tradesPath(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("trade log open: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	rec := []string{
		r.ID,
		r.Time.UTC().Format(time.RFC3339),
		r.Day,
		r.Symbol,
		string(r.Side),
		strconv.Itoa(r.Qty),
		strconv.FormatFloat(r.Price, 'f', 2, 64),
		r.Mode,
		string(r.Outcome),
		r.OrderRef,
		r.Note,
	}
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// LastTrades returns up to n most recent trade records, oldest first.
func (l *FileLedger) LastTrades(n int) ([]TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.tradesPath())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // damaged rows are skipped below, not fatal
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []TradeRecord
	for i := 1; i < len(rows); i++ { // skip header
		rec, ok := parseTradeRow(rows[i])
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

// parseTradeRow rejects rows that don't carry the full column set; a
// truncated row must never surface as an empty audit entry.
func parseTradeRow(rec []string) (TradeRecord, bool) {
	if len(rec) < 11 {
		return TradeRecord{}, false
	}
	ts, _ := time.Parse(time.RFC3339, rec[1])
	qty, _ := strconv.Atoi(rec[5])
	price, _ := strconv.ParseFloat(rec[6], 64)
	return TradeRecord{
		ID: rec[0], Time: ts, Day: rec[2], Symbol: rec[3],
		Side: OrderSide(rec[4]), Qty: qty, Price: price,
		Mode: rec[7], Outcome: TradeOutcome(rec[8]), OrderRef: rec[9], Note: rec[10],
	}, true
}

// writeFileAtomic writes data to path atomically (tmp file + fsync + rename).
// On Unix it also fsyncs the parent directory to harden the rename durability.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
