// FILE: gap.go
// Package main – Gap-detection evaluator.
//
// evalGap is the single entry signal: a BUY trigger when the last traded
// price has gapped down from the previous session's close by at least the
// configured percentage. Pure and stateless; the one-trade-per-day guard
// lives in the trader, not here.

package main

import "fmt"

// DataQuality reports why a quote could not be evaluated.
type DataQuality int

const (
	dqOK DataQuality = iota
	dqNoQuote
	dqBadPrevClose
	dqBadPrice
)

func (d DataQuality) String() string {
	switch d {
	case dqOK:
		return "ok"
	case dqNoQuote:
		return "no_quote"
	case dqBadPrevClose:
		return "bad_prev_close"
	case dqBadPrice:
		return "bad_price"
	default:
		return fmt.Sprintf("dq(%d)", int(d))
	}
}

// GapDecision is the outcome of evaluating one quote against one threshold.
type GapDecision struct {
	GapPct  float64 // (last − prevClose) / prevClose × 100; negative on a gap-down
	Trigger bool
	Quality DataQuality
}

// evalGap computes the gap percent and decides whether it is a BUY trigger.
// Bad inputs yield a no-trigger decision with a quality condition, never a
// crash: prevClose must be > 0 and last must be > 0.
func evalGap(last, prevClose, thresholdPct float64) GapDecision {
	if last == 0 && prevClose == 0 {
		return GapDecision{Quality: dqNoQuote}
	}
	if prevClose <= 0 {
		return GapDecision{Quality: dqBadPrevClose}
	}
	if last <= 0 {
		return GapDecision{Quality: dqBadPrice}
	}
	gap := (last - prevClose) / prevClose * 100
	return GapDecision{
		GapPct:  gap,
		Trigger: gap <= -thresholdPct,
		Quality: dqOK,
	}
}
