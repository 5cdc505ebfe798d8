// FILE: position.go
// Package main – Position lifecycle for one symbol on one trading day.
//
// Status flow: (no record) → BOUGHT → TARGET_HIT | ALERTED.
// TARGET_HIT is terminal for the day. ALERTED suppresses further loss
// alerts but the position still exits via TARGET_HIT if price recovers.
// A new trading day always means a new Position, even for the same symbol.

package main

import "time"

// PositionStatus is the closed set of lifecycle states a persisted
// Position can be in. The WATCHING state is the absence of a record.
type PositionStatus string

const (
	StatusBought    PositionStatus = "BOUGHT"
	StatusTargetHit PositionStatus = "TARGET_HIT"
	StatusAlerted   PositionStatus = "ALERTED"
)

// Terminal reports whether a status blocks any further automated action
// for the day. ALERTED is not terminal: target monitoring continues.
func (s PositionStatus) Terminal() bool { return s == StatusTargetHit }

// Position is the durable state for one (symbol, trading day) pair.
type Position struct {
	Symbol     string         `json:"symbol"`
	Day        string         `json:"day"` // trading-day key, YYYY-MM-DD in the session TZ
	Status     PositionStatus `json:"status"`
	BuyPrice   float64        `json:"buy_price"`
	Qty        int            `json:"qty"`
	Target     float64        `json:"target"`
	LossAlert  float64        `json:"loss_alert"`
	EntryTime  time.Time      `json:"entry_time"`
	LastPrice  float64        `json:"last_price"` // most recent evaluated LTP
	AlertTime  *time.Time     `json:"alert_time,omitempty"`
	TargetTime *time.Time     `json:"target_time,omitempty"`
}

// newPosition derives target and loss-alert levels from the executed fill.
func newPosition(symbol, day string, in Instrument, fillPrice float64, now time.Time) *Position {
	return &Position{
		Symbol:    symbol,
		Day:       day,
		Status:    StatusBought,
		BuyPrice:  fillPrice,
		Qty:       in.Qty,
		Target:    fillPrice * (1 + in.SellTargetPct/100),
		LossAlert: fillPrice * (1 - in.LossAlertPct/100),
		EntryTime: now,
		LastPrice: fillPrice,
	}
}

// PositionEvent is what a price update does to an open position.
type PositionEvent int

const (
	evNone PositionEvent = iota
	evTargetHit
	evLossAlert
)

// evaluatePosition maps (status, price) to the event the trader must act on.
// Target is checked before the loss alert: with misconfigured thresholds a
// single update can satisfy both, and profit-taking wins the tie.
func evaluatePosition(p *Position, last float64) PositionEvent {
	if p == nil || p.Status.Terminal() || last <= 0 {
		return evNone
	}
	if last >= p.Target {
		return evTargetHit
	}
	if p.Status != StatusAlerted && last <= p.LossAlert {
		return evLossAlert
	}
	return evNone
}

// markTargetHit transitions the position to its terminal state.
func (p *Position) markTargetHit(now time.Time) {
	p.Status = StatusTargetHit
	p.TargetTime = &now
}

// markAlerted records the single loss alert for this position.
func (p *Position) markAlerted(now time.Time) {
	p.Status = StatusAlerted
	p.AlertTime = &now
}
