// FILE: replay.go
// Package main – CSV quote loader and replay runner.
//
// What's here:
//   • loadQuoteCSV(path) -> []Quote : reads time,symbol,last,prev_close
//   • runReplay(ctx, csvPath, trader, rs, ledger, cfg)
//       - feeds recorded quotes through the decision engine in order
//       - honors day rollovers derived from the quote timestamps
//
// Replay always runs with simulated execution; it exercises the full entry,
// target, and alert logic against a recorded session without a broker.
//
// Notes:
//   • Time column accepts RFC3339 or UNIX seconds.
//   • Unknown columns are ignored; headers are case-insensitive.

package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// loadQuoteCSV reads a quote CSV with headers:
// time|timestamp, symbol, last|ltp, prev_close|close
func loadQuoteCSV(path string) ([]Quote, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []Quote
	var headers []string
	rowIdx := 0

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}
		row := map[string]string{}
		for j, h := range headers {
			k := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				row[k] = strings.TrimSpace(rec[j])
			}
		}
		ts := firstOf(row, "time", "timestamp")
		sym := firstOf(row, "symbol")
		last := firstOf(row, "last", "ltp")
		prev := firstOf(row, "prev_close", "close")
		if ts == "" || sym == "" || last == "" {
			continue
		}
		tt, err := parseTimeFlexible(ts)
		if err != nil {
			continue
		}
		lp, _ := strconv.ParseFloat(last, 64)
		pc, _ := strconv.ParseFloat(prev, 64)
		out = append(out, Quote{
			Symbol:    strings.ToUpper(sym),
			LastPrice: lp,
			PrevClose: pc,
			Time:      tt,
		})
	}
	return out, nil
}

func firstOf(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

func parseTimeFlexible(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

// runReplay drives recorded quotes through the engine in file order.
func runReplay(ctx context.Context, csvPath string, trader *Trader, rs *RunState, ledger Ledger, cfg Config) {
	quotes, err := loadQuoteCSV(csvPath)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
	if len(quotes) == 0 {
		log.Fatalf("replay: no quotes in %s", csvPath)
	}

	byName := make(map[string]Instrument, len(cfg.Instruments))
	for _, in := range cfg.Instruments {
		byName[in.Symbol] = in
	}

	log.Printf("replay: %d quotes from %s", len(quotes), csvPath)
	evaluated := 0
	for _, q := range quotes {
		if ctx.Err() != nil {
			return
		}
		in, ok := byName[q.Symbol]
		if !ok {
			continue
		}
		if prev, rolled := rs.RolloverIfNeeded(cfg.Timezone, q.Time, ledger); rolled {
			log.Printf("[DAY] replay rollover %s -> %s", prev, rs.Day())
			trader.ReloadDay()
		}
		trader.EvaluateSymbol(ctx, in, q, q.Time)
		evaluated++
	}
	log.Printf("replay: done, %d quotes evaluated", evaluated)
}
