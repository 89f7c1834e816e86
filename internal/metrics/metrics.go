// Package metrics holds the Prometheus collectors for the trampoline, the
// event managers, the phase scheduler, and the host loop. Collectors are
// registered with the default registry at init and exposed by httpapi on
// /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	processRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "phasebus",
			Subsystem: "process",
			Name:      "requests_total",
			Help:      "Total deferred calls requested on the trampoline",
		},
	)

	processExecutedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "phasebus",
			Subsystem: "process",
			Name:      "executed_total",
			Help:      "Total deferred calls executed by drain passes",
		},
	)

	processBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "phasebus",
			Subsystem: "process",
			Name:      "drain_calls",
			Help:      "Number of deferred calls executed per drain",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	eventDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phasebus",
			Subsystem: "event",
			Name:      "dispatch_total",
			Help:      "Total dispatch passes per payload type and path",
		},
		[]string{"type", "path"},
	)

	eventSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "phasebus",
			Subsystem: "event",
			Name:      "subscribers",
			Help:      "Live subscriptions per payload type after the last prune",
		},
		[]string{"type", "path"},
	)

	phaseRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phasebus",
			Subsystem: "phase",
			Name:      "runs_total",
			Help:      "Total completed runs per phase",
		},
		[]string{"phase"},
	)

	phaseDelayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phasebus",
			Subsystem: "phase",
			Name:      "delayed_total",
			Help:      "Delayed phase events by phase and outcome (scheduled|released)",
		},
		[]string{"phase", "outcome"},
	)

	hostTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "phasebus",
			Subsystem: "host",
			Name:      "ticks_total",
			Help:      "Total host ticks that pumped the trampoline",
		},
	)
)

func init() {
	prometheus.MustRegister(
		processRequestsTotal, processExecutedTotal, processBatchSize,
		eventDispatchTotal, eventSubscribers,
		phaseRunsTotal, phaseDelayedTotal,
		hostTicksTotal,
	)
}

// IncProcessRequest counts one trampoline request.
func IncProcessRequest() { processRequestsTotal.Inc() }

// ObserveDrain records the number of calls executed by one drain.
func ObserveDrain(calls int) {
	processExecutedTotal.Add(float64(calls))
	processBatchSize.Observe(float64(calls))
}

// IncDispatch counts one dispatch pass for payload type typ. path is
// "unkeyed" or "keyed".
func IncDispatch(typ, path string) { eventDispatchTotal.WithLabelValues(typ, path).Inc() }

// SetSubscribers records the live subscription count after a prune.
func SetSubscribers(typ, path string, n int) {
	eventSubscribers.WithLabelValues(typ, path).Set(float64(n))
}

// IncPhaseRun counts one completed run of phase id.
func IncPhaseRun(id uint32) { phaseRunsTotal.WithLabelValues(phaseLabel(id)).Inc() }

// IncDelayedScheduled counts a delayed event registered against phase id.
func IncDelayedScheduled(id uint32) {
	phaseDelayedTotal.WithLabelValues(phaseLabel(id), "scheduled").Inc()
}

// IncDelayedReleased counts a delayed event whose offset reached zero.
func IncDelayedReleased(id uint32) {
	phaseDelayedTotal.WithLabelValues(phaseLabel(id), "released").Inc()
}

// IncTick counts one host tick.
func IncTick() { hostTicksTotal.Inc() }

func phaseLabel(id uint32) string { return strconv.FormatUint(uint64(id), 10) }
