package eventbus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point-in-time snapshot of the engine's delivery counters,
// read-only and safe to call at any time (see SPEC_FULL.md's Health/
// introspection surface supplement).
type Stats struct {
	Dispatched     uint64
	Handled        uint64
	DeadEvents     uint64
	ExclusiveSkips uint64
	StickyReplays  uint64
}

// PrometheusCollector implements prometheus.Collector for one Engine's
// delivery stats, in the same pull-based, lock-free-hot-path style as the
// teacher's eventbus metrics exporters: the hot dispatch path only ever
// increments plain counters, and Collect reads a snapshot on scrape.
type PrometheusCollector struct {
	engine *Engine

	dispatchedDesc     *prometheus.Desc
	handledDesc        *prometheus.Desc
	deadEventsDesc     *prometheus.Desc
	exclusiveSkipsDesc *prometheus.Desc
	stickyReplaysDesc  *prometheus.Desc
}

// NewPrometheusCollector creates a collector for engine. namespace prefixes
// every metric name (defaults to "eventbus_manager" if empty).
func NewPrometheusCollector(engine *Engine, namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = "eventbus_manager"
	}
	return &PrometheusCollector{
		engine: engine,
		dispatchedDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_dispatched_total", namespace),
			"Total number of dispatches, including synthesized DeadEvent redispatches.", nil, nil),
		handledDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_handled_total", namespace),
			"Total number of non-silent handler activations.", nil, nil),
		deadEventsDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_dead_events_total", namespace),
			"Total number of synthesized DeadEvents.", nil, nil),
		exclusiveSkipsDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_exclusive_skips_total", namespace),
			"Total number of exclusive-gate skips.", nil, nil),
		stickyReplaysDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_sticky_replays_total", namespace),
			"Total number of sticky replay deliveries on register.", nil, nil),
	}
}

func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.dispatchedDesc
	ch <- c.handledDesc
	ch <- c.deadEventsDesc
	ch <- c.exclusiveSkipsDesc
	ch <- c.stickyReplaysDesc
}

func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.engine.Stats()
	ch <- prometheus.MustNewConstMetric(c.dispatchedDesc, prometheus.CounterValue, float64(s.Dispatched))
	ch <- prometheus.MustNewConstMetric(c.handledDesc, prometheus.CounterValue, float64(s.Handled))
	ch <- prometheus.MustNewConstMetric(c.deadEventsDesc, prometheus.CounterValue, float64(s.DeadEvents))
	ch <- prometheus.MustNewConstMetric(c.exclusiveSkipsDesc, prometheus.CounterValue, float64(s.ExclusiveSkips))
	ch <- prometheus.MustNewConstMetric(c.stickyReplaysDesc, prometheus.CounterValue, float64(s.StickyReplays))
}
