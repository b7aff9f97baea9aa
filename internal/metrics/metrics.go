package metrics

import "sync/atomic"

// MetricID identifies one counter slot.
type MetricID uint16

const (
	MetricRegistrationRequested MetricID = iota
	MetricRegistrationCompleted
	MetricRegistrationRejected
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginRateLimited
	MetricSessionCreated
	MetricSessionReused
	MetricSessionRevoked
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricOTPIssued
	MetricOTPVerified
	MetricOTPInvalidCode
	MetricOTPAttemptsExceeded
	MetricOTPSwept
	MetricOTPRateLimited
	MetricPasswordResetRequested
	MetricPasswordResetCompleted
	MetricPasswordResetRejected
	MetricAccountDeleted
	MetricForcedLogout
	MetricCascadeCleanupFailure
	MetricCacheHit
	MetricCacheMiss
	MetricLogout

	MetricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config controls metric collection.
type Config struct {
	Enabled bool
}

// Metrics holds atomic counters. When disabled, all operations are
// no-ops on a nil-safe receiver.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]paddedCounter
}

// Snapshot is a point-in-time deep copy of all counters.
type Snapshot struct {
	Counters map[MetricID]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Add(id MetricID, delta uint64) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, delta)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) TakeSnapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{Counters: map[MetricID]uint64{}}
	}

	s := Snapshot{Counters: make(map[MetricID]uint64, int(MetricIDCount))}
	for id := MetricID(0); id < MetricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
