package serialization

import (
	"sync/atomic"
	"time"
)

// Statistics is the engine's narrow sink for counters and timings. Updates
// are non-blocking; timings are in opaque tick units.
type Statistics interface {
	RecordCopy(d time.Duration)
	RecordSerialization(d time.Duration)
	RecordDeserialization(d time.Duration)
	RecordFallbackCopy(d time.Duration)
	RecordFallbackSerialization(d time.Duration)
	RecordFallbackDeserialization(d time.Duration)
	RecordLargeObjectAllocation(typeName string, bytes int)
}

// NopStatistics discards everything.
type NopStatistics struct{}

func (NopStatistics) RecordCopy(time.Duration)                    {}
func (NopStatistics) RecordSerialization(time.Duration)           {}
func (NopStatistics) RecordDeserialization(time.Duration)         {}
func (NopStatistics) RecordFallbackCopy(time.Duration)            {}
func (NopStatistics) RecordFallbackSerialization(time.Duration)   {}
func (NopStatistics) RecordFallbackDeserialization(time.Duration) {}
func (NopStatistics) RecordLargeObjectAllocation(string, int)     {}

// AtomicStatistics counts operations with lock-free counters. Collection is
// gated by the enabled flag fixed at construction.
type AtomicStatistics struct {
	enabled bool

	copies           atomic.Int64
	serializations   atomic.Int64
	deserializations atomic.Int64
	fallbackCopies   atomic.Int64
	fallbackSers     atomic.Int64
	fallbackDesers   atomic.Int64
	largeObjects     atomic.Int64

	copyTime         atomic.Int64
	serTime          atomic.Int64
	deserTime        atomic.Int64
	fallbackCopyTime atomic.Int64
	fallbackSerTime  atomic.Int64
	fallbackDesTime  atomic.Int64
}

func NewAtomicStatistics(enabled bool) *AtomicStatistics {
	return &AtomicStatistics{enabled: enabled}
}

func (s *AtomicStatistics) record(count, ticks *atomic.Int64, d time.Duration) {
	if !s.enabled {
		return
	}
	count.Add(1)
	ticks.Add(d.Nanoseconds())
}

func (s *AtomicStatistics) RecordCopy(d time.Duration) { s.record(&s.copies, &s.copyTime, d) }
func (s *AtomicStatistics) RecordSerialization(d time.Duration) {
	s.record(&s.serializations, &s.serTime, d)
}
func (s *AtomicStatistics) RecordDeserialization(d time.Duration) {
	s.record(&s.deserializations, &s.deserTime, d)
}
func (s *AtomicStatistics) RecordFallbackCopy(d time.Duration) {
	s.record(&s.fallbackCopies, &s.fallbackCopyTime, d)
}
func (s *AtomicStatistics) RecordFallbackSerialization(d time.Duration) {
	s.record(&s.fallbackSers, &s.fallbackSerTime, d)
}
func (s *AtomicStatistics) RecordFallbackDeserialization(d time.Duration) {
	s.record(&s.fallbackDesers, &s.fallbackDesTime, d)
}
func (s *AtomicStatistics) RecordLargeObjectAllocation(string, int) {
	if s.enabled {
		s.largeObjects.Add(1)
	}
}

func (s *AtomicStatistics) Copies() int64           { return s.copies.Load() }
func (s *AtomicStatistics) Serializations() int64   { return s.serializations.Load() }
func (s *AtomicStatistics) Deserializations() int64 { return s.deserializations.Load() }
func (s *AtomicStatistics) FallbackCopies() int64   { return s.fallbackCopies.Load() }
func (s *AtomicStatistics) FallbackSerializations() int64 {
	return s.fallbackSers.Load()
}
func (s *AtomicStatistics) FallbackDeserializations() int64 {
	return s.fallbackDesers.Load()
}
func (s *AtomicStatistics) LargeObjectAllocations() int64 { return s.largeObjects.Load() }

// CopyTime and friends expose accumulated tick totals.
func (s *AtomicStatistics) CopyTime() time.Duration { return time.Duration(s.copyTime.Load()) }
func (s *AtomicStatistics) SerializationTime() time.Duration {
	return time.Duration(s.serTime.Load())
}
func (s *AtomicStatistics) DeserializationTime() time.Duration {
	return time.Duration(s.deserTime.Load())
}
