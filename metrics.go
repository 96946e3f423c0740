package goRBAC

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one engine counter or histogram.
type MetricID uint16

const (
	// MetricSessionCreated counts sessions created successfully.
	MetricSessionCreated MetricID = iota
	// MetricSessionDenied counts CreateSession calls rejected by bind,
	// constraint, or SoD checks.
	MetricSessionDenied
	// MetricSessionExpired counts sessions lazily transitioned to
	// Expired.
	MetricSessionExpired
	// MetricSessionEnded counts sessions terminated by their owner.
	MetricSessionEnded
	// MetricSessionResumed counts sessions resumed from a hand-off token.
	MetricSessionResumed
	// MetricRoleActivated counts role activations, creation-time and
	// AddActiveRole alike.
	MetricRoleActivated
	// MetricRoleDeactivated counts DropActiveRole removals.
	MetricRoleDeactivated
	// MetricAccessAllowed counts CheckAccess allows.
	MetricAccessAllowed
	// MetricAccessDenied counts CheckAccess denies.
	MetricAccessDenied
	// MetricConstraintViolation counts temporal constraint failures of
	// any dimension.
	MetricConstraintViolation
	// MetricSSDViolation counts static separation-of-duty rejections.
	MetricSSDViolation
	// MetricDSDViolation counts dynamic separation-of-duty rejections.
	MetricDSDViolation
	// MetricAdminScopeDenied counts administrative operations rejected
	// by the org-unit pool check.
	MetricAdminScopeDenied
	// MetricAdminMutation counts administrative mutations applied.
	MetricAdminMutation
	// MetricPolicyReload counts hierarchy/SoD cache rebuilds.
	MetricPolicyReload
	// MetricStoreError counts entity store failures surfaced to callers.
	MetricStoreError
	// MetricCheckAccessLatency is the CheckAccess latency histogram.
	MetricCheckAccessLatency
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

// Metrics is the in-process metric registry: fixed-slot atomic counters
// plus an optional latency histogram. A nil or disabled registry is safe
// to call and does nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of the registry, consumed by
// the exporters under metrics/export.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds a registry from config.
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

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a duration into the histogram for id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Snapshot copies every counter and histogram.
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
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricCheckAccessLatency].buckets[i])
		}
		s.Histograms[MetricCheckAccessLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
