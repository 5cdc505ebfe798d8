// FILE: config.go
// Package main – Runtime configuration model and loader.
//
// This file defines the Config struct (all the knobs the engine uses), the
// per-symbol Instrument parameters, and the loaders that populate them from
// environment variables and an optional watchlist YAML file. The .env file is
// read by loadBotEnv() (see env.go), so you can tune behavior without exports.
//
// Typical flow (see main.go):
//   loadBotEnv()
//   cfg, err := loadConfigFromEnv()

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Instrument identifies one tradable symbol and the parameters governing it.
// Immutable for the duration of a session; built once at startup.
type Instrument struct {
	Symbol        string  `yaml:"symbol"`
	Qty           int     `yaml:"qty"`
	BuyGapPct     float64 `yaml:"buy_gap_pct"`
	SellTargetPct float64 `yaml:"sell_target_pct"`
	LossAlertPct  float64 `yaml:"loss_alert_pct"`
}

// Config holds all runtime knobs for trading and operations.
type Config struct {
	// Watchlist
	Instruments []Instrument

	// Global trade parameters (per-symbol YAML overrides win)
	QtyPerTrade   int
	BuyGapPct     float64
	SellTargetPct float64
	LossAlertPct  float64

	// Mode & cadence
	DryRun       bool
	PollInterval time.Duration
	Timezone     string // trading-day boundary timezone

	// External-call bounds
	QuoteTimeout time.Duration
	OrderTimeout time.Duration
	QuoteFanout  int // max concurrent quote fetches per tick

	// Data-quality escalation: alert after N consecutive bad ticks per symbol
	DQAlertTicks int

	// Persistence
	LedgerDir string

	// Ops
	Port int

	// Notifier (optional)
	TelegramToken  string
	TelegramChatID string
}

// defaultWatchlist mirrors the symbols the engine was originally run against.
var defaultWatchlist = []string{
	"NIFTYBEES", "BANKBEES", "ITBEES", "PHARMABEES", "GOLDBEES",
	"SILVERBEES", "CPSEETF", "MON100ETF", "LIQUIDBEES", "AUTOETF",
}

// loadConfigFromEnv reads the process env (already hydrated by loadBotEnv())
// and returns a Config with sane defaults if keys are missing.
func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		QtyPerTrade:   getEnvInt("QTY_PER_TRADE", 10),
		BuyGapPct:     getEnvFloat("BUY_GAP_PERCENT", 2.0),
		SellTargetPct: getEnvFloat("SELL_TARGET_PERCENT", 3.0),
		LossAlertPct:  getEnvFloat("LOSS_ALERT_PERCENT", 5.0),

		DryRun:       getEnvBool("DRY_RUN", true),
		PollInterval: time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)) * time.Second,
		Timezone:     getEnv("TRADING_TZ", "Asia/Kolkata"),

		QuoteTimeout: time.Duration(getEnvInt("QUOTE_TIMEOUT_SEC", 4)) * time.Second,
		OrderTimeout: time.Duration(getEnvInt("ORDER_TIMEOUT_SEC", 10)) * time.Second,
		QuoteFanout:  getEnvInt("QUOTE_FANOUT", 8),

		DQAlertTicks: getEnvInt("DQ_ALERT_TICKS", 12),

		LedgerDir: getEnv("LEDGER_DIR", "state"),
		Port:      getEnvInt("PORT", 8080),

		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
	}

	if cfg.BuyGapPct <= 0 || cfg.SellTargetPct <= 0 || cfg.LossAlertPct <= 0 {
		return cfg, fmt.Errorf("gap/target/alert percents must be positive (got %.2f/%.2f/%.2f)",
			cfg.BuyGapPct, cfg.SellTargetPct, cfg.LossAlertPct)
	}
	if cfg.QtyPerTrade <= 0 {
		return cfg, fmt.Errorf("QTY_PER_TRADE must be positive (got %d)", cfg.QtyPerTrade)
	}
	if cfg.QuoteFanout <= 0 {
		cfg.QuoteFanout = 1
	}

	insts, err := loadWatchlist(cfg)
	if err != nil {
		return cfg, err
	}
	cfg.Instruments = insts
	return cfg, nil
}

// watchlistFile is the YAML shape accepted via WATCHLIST_FILE.
type watchlistFile struct {
	Instruments []Instrument `yaml:"instruments"`
}

// loadWatchlist builds the instrument set, in priority order:
//  1. WATCHLIST_FILE – YAML with optional per-symbol overrides
//  2. WATCHLIST      – comma-separated symbols, global knobs apply
//  3. built-in default list
func loadWatchlist(cfg Config) ([]Instrument, error) {
	if path := getEnv("WATCHLIST_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("watchlist file: %w", err)
		}
		var wf watchlistFile
		if err := yaml.Unmarshal(raw, &wf); err != nil {
			return nil, fmt.Errorf("watchlist file %s: %w", path, err)
		}
		if len(wf.Instruments) == 0 {
			return nil, fmt.Errorf("watchlist file %s: no instruments", path)
		}
		out := make([]Instrument, 0, len(wf.Instruments))
		for _, in := range wf.Instruments {
			sym := strings.ToUpper(strings.TrimSpace(in.Symbol))
			if sym == "" {
				return nil, fmt.Errorf("watchlist file %s: instrument with empty symbol", path)
			}
			in.Symbol = sym
			applyInstrumentDefaults(&in, cfg)
			out = append(out, in)
		}
		return out, nil
	}

	symbols := defaultWatchlist
	if raw := getEnv("WATCHLIST", ""); raw != "" {
		symbols = nil
		for _, s := range strings.Split(raw, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
		if len(symbols) == 0 {
			return nil, fmt.Errorf("WATCHLIST set but empty after parsing")
		}
	}

	out := make([]Instrument, 0, len(symbols))
	for _, sym := range symbols {
		in := Instrument{Symbol: sym}
		applyInstrumentDefaults(&in, cfg)
		out = append(out, in)
	}
	return out, nil
}

// applyInstrumentDefaults fills zero-valued instrument fields from the global knobs.
func applyInstrumentDefaults(in *Instrument, cfg Config) {
	if in.Qty <= 0 {
		in.Qty = cfg.QtyPerTrade
	}
	if in.BuyGapPct <= 0 {
		in.BuyGapPct = cfg.BuyGapPct
	}
	if in.SellTargetPct <= 0 {
		in.SellTargetPct = cfg.SellTargetPct
	}
	if in.LossAlertPct <= 0 {
		in.LossAlertPct = cfg.LossAlertPct
	}
}

// Mode returns the execution-mode tag used on every visible surface, so
// simulated and live outcomes are never confused in review.
func (c *Config) Mode() string {
	if c.DryRun {
		return "paper"
	}
	return "live"
}
