package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricSessionEstablished counts sessions registered by Establish.
	MetricSessionEstablished MetricID = iota
	// MetricSessionEstablishFailed counts Establish calls that returned an error.
	MetricSessionEstablishFailed
	// MetricSessionClosed counts sessions removed by CloseSession.
	MetricSessionClosed
	// MetricSessionExpired counts sessions removed by Sweep.
	MetricSessionExpired
	// MetricSequenceAccepted counts inbound and outbound messages that passed the gate.
	MetricSequenceAccepted
	// MetricSequenceRejected counts messages rejected by sequence validation.
	MetricSequenceRejected
	// MetricInvalidSessionRejected counts messages presented on an unusable session.
	MetricInvalidSessionRejected
	// MetricIdentifierCollision counts identifiers rejected as already registered.
	MetricIdentifierCollision
	// MetricIdentifierClaimed counts remote identifiers owned by another node.
	MetricIdentifierClaimed
	// MetricClaimFailure counts claim store errors.
	MetricClaimFailure
	// MetricClaimLost counts remote sessions closed after another node took
	// over their identifier.
	MetricClaimLost
	// MetricMaterialReleaseFailure counts key or certificate Close errors.
	MetricMaterialReleaseFailure
	// MetricEstablishThrottled counts Establish calls refused by the failure throttle.
	MetricEstablishThrottled
	// MetricEstablishLatency is the Establish latency histogram.
	MetricEstablishLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus the establish latency
// histogram. A nil or disabled Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of the engine metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates Metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments the counter id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add increments the counter id by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram id. Only MetricEstablishLatency carries
// a histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricEstablishLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricEstablishLatency].buckets[i])
		}
		s.Histograms[MetricEstablishLatency] = buckets
	}

	return s
}

// Bucket upper bounds: 10µs, 50µs, 100µs, 250µs, 500µs, 1ms, 5ms, +Inf.
func bucketIndex(d time.Duration) int {
	us := d.Microseconds()

	switch {
	case us <= 10:
		return 0
	case us <= 50:
		return 1
	case us <= 100:
		return 2
	case us <= 250:
		return 3
	case us <= 500:
		return 4
	case us <= 1000:
		return 5
	case us <= 5000:
		return 6
	default:
		return 7
	}
}
