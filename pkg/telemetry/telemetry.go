//go:build linux

// Package telemetry holds in-process counters and gauges describing the
// supervisor's tick history, read back for the periodic status log line.
// It never exposes an HTTP /metrics endpoint: the daemon has no network
// surface by design, so prometheus/client_golang is used purely for its
// Counter/Gauge bookkeeping, not its exposition format.
package telemetry

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quietmem/oomsentinel/pkg/evaluator"
	"github.com/quietmem/oomsentinel/pkg/killer"
)

// Telemetry is the daemon's private metric set.
type Telemetry struct {
	registry *prometheus.Registry

	ticks           prometheus.Counter
	verdictGauge    prometheus.Gauge
	killsByOutcome  *prometheus.CounterVec
	protectedRaces  prometheus.Counter
	lastMemFreePct  prometheus.Gauge
	lastSwapFreePct prometheus.Gauge
}

// New builds a fresh, unregistered-elsewhere metric set on a private
// registry (never the global default, to keep this daemon's metrics from
// leaking into anything else in-process).
func New() *Telemetry {
	reg := prometheus.NewRegistry()

	t := &Telemetry{
		registry: reg,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oomsentinel",
			Name:      "ticks_total",
			Help:      "Number of supervisor loop ticks completed.",
		}),
		verdictGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "oomsentinel",
			Name:      "last_verdict",
			Help:      "Verdict severity produced by the most recent tick (0=ok,1=warn,2=kill).",
		}),
		killsByOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oomsentinel",
			Name:      "kills_total",
			Help:      "Kill attempts by outcome.",
		}, []string{"outcome"}),
		protectedRaces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oomsentinel",
			Name:      "protected_races_total",
			Help:      "Kills aborted because the victim became immune between scan and signal.",
		}),
		lastMemFreePct: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "oomsentinel",
			Name:      "mem_free_percent",
			Help:      "Free memory percent observed at the most recent sample.",
		}),
		lastSwapFreePct: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "oomsentinel",
			Name:      "swap_free_percent",
			Help:      "Free swap percent observed at the most recent sample.",
		}),
	}

	reg.MustRegister(t.ticks, t.verdictGauge, t.killsByOutcome, t.protectedRaces, t.lastMemFreePct, t.lastSwapFreePct)
	return t
}

// RecordTick counts a tick and updates the per-tick gauges; call once per
// supervisor iteration, after its sample has been evaluated.
func (t *Telemetry) RecordTick(verdict evaluator.Verdict, memFreePercent, swapFreePercent float64) {
	t.ticks.Inc()
	t.verdictGauge.Set(verdictSeverity(verdict))
	t.lastMemFreePct.Set(memFreePercent)
	t.lastSwapFreePct.Set(swapFreePercent)
}

// RecordOutcome tallies one kill attempt.
func (t *Telemetry) RecordOutcome(outcome killer.Outcome) {
	t.killsByOutcome.WithLabelValues(outcome.String()).Inc()
	if outcome == killer.ProtectedRace {
		t.protectedRaces.Inc()
	}
}

// Snapshot is a plain-value copy of the counters/gauges for the status log
// line, so callers never handle prometheus metric types themselves.
type Snapshot struct {
	Ticks           float64
	LastVerdict     float64
	ProtectedRaces  float64
	MemFreePercent  float64
	SwapFreePercent float64
	KillsByOutcome  map[string]float64
}

// Snapshot gathers the current values through the registry, the one place
// this package does touch prometheus's Gatherer, strictly for in-process
// reads rather than exposition.
func (t *Telemetry) Snapshot() Snapshot {
	families, err := t.registry.Gather()
	if err != nil {
		return Snapshot{}
	}

	snap := Snapshot{KillsByOutcome: map[string]float64{}}
	for _, fam := range families {
		switch fam.GetName() {
		case "oomsentinel_ticks_total":
			snap.Ticks = firstValue(fam)
		case "oomsentinel_last_verdict":
			snap.LastVerdict = firstValue(fam)
		case "oomsentinel_protected_races_total":
			snap.ProtectedRaces = firstValue(fam)
		case "oomsentinel_mem_free_percent":
			snap.MemFreePercent = firstValue(fam)
		case "oomsentinel_swap_free_percent":
			snap.SwapFreePercent = firstValue(fam)
		case "oomsentinel_kills_total":
			for _, m := range fam.GetMetric() {
				for _, label := range m.GetLabel() {
					if label.GetName() == "outcome" {
						snap.KillsByOutcome[label.GetValue()] = m.GetCounter().GetValue()
					}
				}
			}
		}
	}
	return snap
}

func firstValue(fam *dto.MetricFamily) float64 {
	metrics := fam.GetMetric()
	if len(metrics) == 0 {
		return 0
	}
	if c := metrics[0].GetCounter(); c != nil {
		return c.GetValue()
	}
	if g := metrics[0].GetGauge(); g != nil {
		return g.GetValue()
	}
	return 0
}

func verdictSeverity(v evaluator.Verdict) float64 {
	switch v {
	case evaluator.WarnMemory, evaluator.WarnSwap:
		return 1
	case evaluator.KillMemory, evaluator.KillSwap:
		return 2
	default:
		return 0
	}
}
