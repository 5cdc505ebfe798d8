// FILE: metrics.go
// Package main – Prometheus metrics for observability.
//
// Exposes the metrics the engine updates during operation:
//   • gap_ticks_total                     – Scheduler ticks completed
//   • gap_orders_total{mode,side}         – Orders placed (mode: paper|live)
//   • gap_order_errors_total{mode,side}   – Order submissions that failed
//   • gap_decisions_total{signal}         – Decisions (buy|target_hit|loss_alert)
//   • gap_quote_errors_total{symbol}      – Quote fetches skipped this tick
//   • gap_dq_skips_total{reason}          – Data-quality skips by condition
//   • gap_open_positions                  – Open (non-terminal) positions (gauge)
//   • gap_kill_switch                     – 1 while the kill-switch is set
//
// Registered in init() and served by the HTTP handler started in main.go at
// /metrics (Prometheus text exposition format).

package main

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gap_ticks_total",
			Help: "Scheduler ticks completed",
		},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gap_orders_total",
			Help: "Orders placed",
		},
		[]string{"mode", "side"},
	)

	mtxOrderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gap_order_errors_total",
			Help: "Order submissions that ended in rejection or error",
		},
		[]string{"mode", "side"},
	)

	mtxDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gap_decisions_total",
			Help: "Decisions taken",
		},
		[]string{"signal"},
	)

	mtxQuoteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gap_quote_errors_total",
			Help: "Quote fetch failures (symbol skipped for the tick)",
		},
		[]string{"symbol"},
	)

	mtxDQSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gap_dq_skips_total",
			Help: "Evaluations skipped on data-quality grounds",
		},
		[]string{"reason"},
	)

	mtxOpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gap_open_positions",
			Help: "Non-terminal positions for the current trading day",
		},
	)

	mtxKillSwitch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gap_kill_switch",
			Help: "1 while new entries are halted",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxTicks, mtxOrders, mtxOrderErrors, mtxDecisions)
	prometheus.MustRegister(mtxQuoteErrors, mtxDQSkips, mtxOpenPositions, mtxKillSwitch)
}

// SetKillSwitchMetric mirrors the operator flag into the gauge.
func SetKillSwitchMetric(on bool) {
	if on {
		mtxKillSwitch.Set(1)
	} else {
		mtxKillSwitch.Set(0)
	}
}
