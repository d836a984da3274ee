// Package metrics exposes prometheus collectors for the task sink and
// streamed cache.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// SinkMetrics tracks TaskSink dispatch throughput.
type SinkMetrics struct {
	scheduled  prometheus.Counter
	completed  prometheus.Counter
	rescheduled prometheus.Counter
	fatal      prometheus.Counter
}

// NewSinkMetrics creates and optionally registers sink metrics against reg.
// A nil registerer skips registration (useful for tests).
func NewSinkMetrics(reg prometheus.Registerer, namespace string) *SinkMetrics {
	m := &SinkMetrics{
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sink", Name: "nodes_scheduled_total",
			Help: "Total number of task graph nodes scheduled onto the dispatch queue.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sink", Name: "nodes_completed_total",
			Help: "Total number of task graph nodes that completed successfully.",
		}),
		rescheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sink", Name: "nodes_rescheduled_total",
			Help: "Total number of node executions that requested a reschedule.",
		}),
		fatal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sink", Name: "fatal_errors_total",
			Help: "Total number of fatal task errors latched into the watchdog.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.scheduled, m.completed, m.rescheduled, m.fatal)
	}
	return m
}

func (m *SinkMetrics) ObserveScheduled()  { m.scheduled.Inc() }
func (m *SinkMetrics) ObserveCompleted()  { m.completed.Inc() }
func (m *SinkMetrics) ObserveReschedule() { m.rescheduled.Inc() }
func (m *SinkMetrics) ObserveFatal()      { m.fatal.Inc() }

// CacheMetrics tracks StreamedCache hit/miss/eviction behaviour.
type CacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	usedBytes prometheus.Gauge
}

// NewCacheMetrics creates and optionally registers cache metrics.
func NewCacheMetrics(reg prometheus.Registerer, namespace string) *CacheMetrics {
	m := &CacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Total number of retrieve_entry calls that found a live entry.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Total number of retrieve_entry calls that found no entry.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "evictions_total",
			Help: "Total number of oldest-entry evictions performed under pressure.",
		}),
		usedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "used_bytes",
			Help: "Used space in the cache body, in bytes.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.evictions, m.usedBytes)
	}
	return m
}

func (m *CacheMetrics) ObserveHit()           { m.hits.Inc() }
func (m *CacheMetrics) ObserveMiss()          { m.misses.Inc() }
func (m *CacheMetrics) ObserveEviction()      { m.evictions.Inc() }
func (m *CacheMetrics) SetUsedBytes(n uint64) { m.usedBytes.Set(float64(n)) }
