// FILE: broker.go
// Package main – Broker abstractions shared by all execution backends.
//
// This file defines the minimal interface the engine needs to talk to a
// market backend (paper or real):
//   • Broker interface: quote lookup, place market order by quantity
//   • Common types: OrderSide, Quote, PlacedOrder
//
// Two concrete implementations live in separate files:
//   • broker_paper.go – in-memory paper broker (simulated fills)
//   • broker_kite.go  – HTTP client for the Kite Connect API

package main

import (
	"context"
	"time"
)

// OrderSide is the side of a trade.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Quote is a point-in-time observation for one symbol. Transient; it is
// consumed to derive decisions and never persisted directly.
type Quote struct {
	Symbol    string
	LastPrice float64
	PrevClose float64
	Time      time.Time
}

// PlacedOrder is a normalized view of a placed/filled market order.
type PlacedOrder struct {
	Ref        string // broker order reference; "paper-…" when simulated
	Symbol     string
	Side       OrderSide
	Price      float64 // average/assumed execution price
	Qty        int
	CreateTime time.Time
}

// Broker is the minimal surface the engine needs to operate.
type Broker interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty int) (*PlacedOrder, error)
}
