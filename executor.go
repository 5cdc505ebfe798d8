// FILE: executor.go
// Package main – Order executor: intent in, audited outcome out.
//
// Paper mode models best-case execution on purpose: fills land at the most
// recent observed last-traded price and are always complete, so strategy
// logic can be tested separately from execution risk. Live mode forwards
// the intent to the broker under a bounded timeout; failures become `error`
// outcomes that are recorded but never retried here — the next natural tick
// is the retry.

package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OrderIntent is a request to trade, produced by the state machine.
type OrderIntent struct {
	Symbol   string
	Side     OrderSide
	Qty      int
	RefPrice float64 // most recent observed LTP; the simulated fill price
	Day      string
}

// OrderRejectedError marks a broker-side rejection (as opposed to a
// transport failure). The reason lands on the audit record.
type OrderRejectedError struct {
	Reason string
}

func (e *OrderRejectedError) Error() string { return "order rejected: " + e.Reason }

// Executor turns order intents into trade records.
type Executor struct {
	broker  Broker
	dryRun  bool
	timeout time.Duration
}

func NewExecutor(broker Broker, dryRun bool, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{broker: broker, dryRun: dryRun, timeout: timeout}
}

func (e *Executor) mode() string {
	if e.dryRun {
		return "paper"
	}
	return "live"
}

// Execute produces exactly one TradeRecord per intent. The record's Outcome
// tells the caller whether the state machine may advance.
func (e *Executor) Execute(ctx context.Context, intent OrderIntent) TradeRecord {
	now := time.Now().UTC()
	rec := TradeRecord{
		ID:     uuid.New().String(),
		Time:   now,
		Day:    intent.Day,
		Symbol: intent.Symbol,
		Side:   intent.Side,
		Qty:    intent.Qty,
		Mode:   e.mode(),
	}

	if e.dryRun {
		rec.Price = intent.RefPrice
		rec.Outcome = OutcomeFilled
		rec.OrderRef = "paper-" + uuid.New().String()
		return rec
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	placed, err := e.broker.PlaceMarketOrder(ctx, intent.Symbol, intent.Side, intent.Qty)
	if err != nil {
		var rej *OrderRejectedError
		if errors.As(err, &rej) {
			rec.Outcome = OutcomeRejected
			rec.Note = rej.Reason
		} else {
			rec.Outcome = OutcomeError
			rec.Note = err.Error()
		}
		rec.Price = intent.RefPrice
		return rec
	}
	rec.Outcome = OutcomeFilled
	rec.Price = placed.Price
	if rec.Price <= 0 {
		rec.Price = intent.RefPrice
	}
	rec.OrderRef = placed.Ref
	return rec
}
