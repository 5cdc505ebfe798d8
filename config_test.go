package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearTradingEnv blanks every env key the loader reads, so tests see the
// built-in defaults regardless of what the host machine has exported.
func clearTradingEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WATCHLIST", "WATCHLIST_FILE", "QTY_PER_TRADE",
		"BUY_GAP_PERCENT", "SELL_TARGET_PERCENT", "LOSS_ALERT_PERCENT",
		"DRY_RUN", "POLL_INTERVAL_SECONDS", "TRADING_TZ",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearTradingEnv(t)
	cfg, err := loadConfigFromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.DryRun, "DRY_RUN defaults to true")
	assert.Equal(t, 10, cfg.QtyPerTrade)
	assert.InDelta(t, 2.0, cfg.BuyGapPct, 1e-9)
	assert.InDelta(t, 3.0, cfg.SellTargetPct, 1e-9)
	assert.InDelta(t, 5.0, cfg.LossAlertPct, 1e-9)
	assert.Equal(t, "paper", cfg.Mode())
	assert.NotEmpty(t, cfg.Instruments)

	// Global knobs flow into every default instrument.
	for _, in := range cfg.Instruments {
		assert.Equal(t, 10, in.Qty)
		assert.InDelta(t, 2.0, in.BuyGapPct, 1e-9)
	}
}

func TestLoadConfigWatchlistEnv(t *testing.T) {
	clearTradingEnv(t)
	t.Setenv("WATCHLIST", " niftybees, goldbees ,")
	cfg, err := loadConfigFromEnv()
	require.NoError(t, err)
	require.Len(t, cfg.Instruments, 2)
	assert.Equal(t, "NIFTYBEES", cfg.Instruments[0].Symbol)
	assert.Equal(t, "GOLDBEES", cfg.Instruments[1].Symbol)
}

func TestLoadConfigWatchlistFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.yaml")
	yaml := `instruments:
  - symbol: niftybees
    qty: 25
    buy_gap_pct: 1.5
  - symbol: GOLDBEES
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	clearTradingEnv(t)
	t.Setenv("WATCHLIST_FILE", path)

	cfg, err := loadConfigFromEnv()
	require.NoError(t, err)
	require.Len(t, cfg.Instruments, 2)

	// Per-symbol overrides win; unset fields inherit the global knobs.
	nb := cfg.Instruments[0]
	assert.Equal(t, "NIFTYBEES", nb.Symbol)
	assert.Equal(t, 25, nb.Qty)
	assert.InDelta(t, 1.5, nb.BuyGapPct, 1e-9)
	assert.InDelta(t, 3.0, nb.SellTargetPct, 1e-9)

	gb := cfg.Instruments[1]
	assert.Equal(t, 10, gb.Qty)
	assert.InDelta(t, 2.0, gb.BuyGapPct, 1e-9)
}

func TestLoadConfigRejectsBadPercents(t *testing.T) {
	clearTradingEnv(t)
	t.Setenv("BUY_GAP_PERCENT", "-2")
	_, err := loadConfigFromEnv()
	assert.Error(t, err)
}

func TestLoadConfigLiveMode(t *testing.T) {
	clearTradingEnv(t)
	t.Setenv("DRY_RUN", "false")
	cfg, err := loadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "live", cfg.Mode())
}
