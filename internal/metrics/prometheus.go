package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "hl_aevo_arb"

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: promNamespace, Name: name, Help: help})
		registry.MustRegister(c)
		return c
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: promNamespace, Name: name, Help: help})
		registry.MustRegister(g)
		return g
	}

	m := &Metrics{
		OrdersPlaced:      counter("orders_placed_total", "Total number of orders placed."),
		OrdersFailed:      counter("orders_failed_total", "Total number of order placement failures."),
		EntryFailed:       counter("entry_failed_total", "Total number of entry flow failures."),
		ExitFailed:        counter("exit_failed_total", "Total number of exit flow failures."),
		PartialHedges:     counter("partial_hedges_total", "Total number of entries or exits where only one leg succeeded."),
		RebalanceFailed:   counter("rebalance_failed_total", "Total number of failed rebalance runs."),
		FramesDropped:     counter("frames_dropped_total", "Total number of stream frames that produced no update."),
		SnapshotErrors:    counter("snapshot_errors_total", "Total number of account snapshot refresh failures."),
		PositionOpen:      gauge("position_open", "1 while an arbitrage position is open."),
		BestSpread:        gauge("best_spread", "Funding spread of the most recently selected candidate."),
		EquityHyperliquid: gauge("equity_hyperliquid", "Last observed Hyperliquid account equity."),
		EquityAevo:        gauge("equity_aevo", "Last observed Aevo account equity."),
	}
	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
