package compiler

import (
	"sync"
	"time"

	"github.com/conneroisu/mixpaths/internal/cache"
)

// PassResult describes one finished compilation pass.
type PassResult struct {
	Entries  int
	Duration time.Duration
	Error    error
}

// Metrics tracks compilation passes.
type Metrics struct {
	totalPasses      int64
	successfulPasses int64
	failedPasses     int64
	entriesCompiled  int64
	totalDuration    time.Duration
	lastError        error
	mutex            sync.RWMutex
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	TotalPasses      int64
	SuccessfulPasses int64
	FailedPasses     int64
	EntriesCompiled  int64
	AverageDuration  time.Duration
	TotalDuration    time.Duration
	LastError        error
	TemplateCache    cache.Stats
	ManifestCache    cache.Stats
}

// NewMetrics creates a new pass metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordPass records a pass result.
func (m *Metrics) RecordPass(result PassResult) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalPasses++
	m.totalDuration += result.Duration
	m.entriesCompiled += int64(result.Entries)

	if result.Error != nil {
		m.failedPasses++
		m.lastError = result.Error
	} else {
		m.successfulPasses++
	}
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snapshot := MetricsSnapshot{
		TotalPasses:      m.totalPasses,
		SuccessfulPasses: m.successfulPasses,
		FailedPasses:     m.failedPasses,
		EntriesCompiled:  m.entriesCompiled,
		TotalDuration:    m.totalDuration,
		LastError:        m.lastError,
	}
	if m.totalPasses > 0 {
		snapshot.AverageDuration = m.totalDuration / time.Duration(m.totalPasses)
	}

	return snapshot
}

// SuccessRate returns the share of successful passes as a percentage.
func (s MetricsSnapshot) SuccessRate() float64 {
	if s.TotalPasses == 0 {
		return 0.0
	}

	return float64(s.SuccessfulPasses) / float64(s.TotalPasses) * 100.0
}
