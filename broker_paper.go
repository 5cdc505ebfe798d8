// FILE: broker_paper.go
// Package main – In-memory paper broker (no external dependencies).
//
// This broker fabricates quotes with a small per-symbol random walk and
// simulates order fills at the latest fabricated price. It exists so dry
// runs work with no API credentials at all; when Kite credentials are
// present, dry runs read real quotes from the Kite broker instead and only
// execution is simulated (see executor.go).

package main

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperBroker keeps one mutable price per symbol to simulate quotes/fills.
type PaperBroker struct {
	mu    sync.Mutex
	rng   *rand.Rand
	state map[string]*paperQuote
}

type paperQuote struct {
	prevClose float64
	last      float64
}

func NewPaperBroker() *PaperBroker {
	return &PaperBroker{
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		state: make(map[string]*paperQuote),
	}
}

func (p *PaperBroker) Name() string { return "paper" }

// FetchQuote returns a synthetic quote: the previous close is seeded per
// symbol and the last price random-walks around it, gapping down now and
// then so the entry logic has something to react to.
func (p *PaperBroker) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.state[symbol]
	if !ok {
		seed := seedPrice(symbol)
		st = &paperQuote{prevClose: seed, last: seed}
		p.state[symbol] = st
	}
	// ±0.3% wiggle, with an occasional sharp drop
	st.last *= 1 + (p.rng.Float64()-0.5)*0.006
	if p.rng.Float64() < 0.01 {
		st.last *= 0.97
	}
	return Quote{
		Symbol:    symbol,
		LastPrice: st.last,
		PrevClose: st.prevClose,
		Time:      time.Now().UTC(),
	}, nil
}

// PlaceMarketOrder simulates an immediate fill at the latest known price.
func (p *PaperBroker) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty int) (*PlacedOrder, error) {
	if qty <= 0 {
		return nil, errors.New("qty must be > 0")
	}
	p.mu.Lock()
	st, ok := p.state[symbol]
	p.mu.Unlock()
	if !ok {
		return nil, errors.New("no price observed yet for " + symbol)
	}
	return &PlacedOrder{
		Ref:        "paper-" + uuid.New().String(),
		Symbol:     symbol,
		Side:       side,
		Price:      st.last,
		Qty:        qty,
		CreateTime: time.Now().UTC(),
	}, nil
}

// seedPrice maps a symbol to a stable price in roughly the 50–1050 range.
func seedPrice(symbol string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return 50 + float64(h.Sum32()%100000)/100
}
