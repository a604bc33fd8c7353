package goSubmit

import (
	"sort"
	"sync/atomic"
	"time"
)

// MetricID names one engine counter or latency histogram.
type MetricID uint16

const (
	MetricSessionOpened MetricID = iota
	MetricSessionClosed
	MetricSessionReaped
	MetricGreet
	MetricAuthSuccess
	MetricAuthFailureCredentials
	MetricAuthFailureScope
	MetricAuthFailureTemporary
	MetricAuthRateLimited
	MetricAuthRequired
	MetricSequencingViolation
	MetricSenderAccepted
	MetricRecipientAccepted
	MetricRecipientRejected
	MetricMessageQueued
	MetricSubmissionFailure
	MetricReset
	// Histogram-backed IDs follow; keep them last.
	MetricAuthLatency
	MetricSubmitLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of every histogram bucket
// but the last, which is unbounded.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const (
	histBucketCount = len(latencyBounds) + 1
	cacheLineSize   = 64
	firstHistogram  = MetricAuthLatency
)

type paddedCounter struct {
	atomic.Uint64
	_ [cacheLineSize - 8]byte
}

type latencyHistogram struct {
	buckets [histBucketCount]atomic.Uint64
	sum     atomic.Int64
}

// Metrics is a fixed set of lock-free counters plus the latency histograms.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [firstHistogram]paddedCounter
	histograms    [metricIDCount - firstHistogram]latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters. Histograms holds
// per-bucket (not cumulative) counts; HistogramSums the total observed time.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

// LatencyBucketBounds returns the upper bounds of the histogram buckets.
// The final, unbounded bucket is not listed.
func LatencyBucketBounds() []time.Duration {
	return append([]time.Duration(nil), latencyBounds[:]...)
}

// IsHistogram reports whether id is recorded with Observe rather than Inc.
func (id MetricID) IsHistogram() bool {
	return id >= firstHistogram && id < metricIDCount
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= firstHistogram {
		return
	}
	m.counters[id].Add(1)
}

// Observe records d against a histogram ID. Counter IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || !id.IsHistogram() {
		return
	}
	h := &m.histograms[id-firstHistogram]
	h.buckets[bucketIndex(d)].Add(1)
	h.sum.Add(int64(d))
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= firstHistogram {
		return 0
	}
	return m.counters[id].Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
	if m == nil || !m.enabled {
		return s
	}

	for id := MetricID(0); id < firstHistogram; id++ {
		s.Counters[id] = m.counters[id].Load()
	}
	if !m.enableLatency {
		return s
	}
	for id := firstHistogram; id < metricIDCount; id++ {
		h := &m.histograms[id-firstHistogram]
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = h.buckets[i].Load()
		}
		s.Histograms[id] = buckets
		s.HistogramSums[id] = time.Duration(h.sum.Load())
	}
	return s
}

func bucketIndex(d time.Duration) int {
	return sort.Search(len(latencyBounds), func(i int) bool { return d <= latencyBounds[i] })
}
