package serialization

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

// OpenCensus measures published by OpenCensusStatistics. Hosts that already
// export OpenCensus views can aggregate engine activity alongside their own.
var (
	MCopies           = stats.Int64("serialization/copies", "Deep copies performed", stats.UnitDimensionless)
	MSerializations   = stats.Int64("serialization/serializations", "Serialize operations", stats.UnitDimensionless)
	MDeserializations = stats.Int64("serialization/deserializations", "Deserialize operations", stats.UnitDimensionless)
	MFallbackCopies   = stats.Int64("serialization/fallback_copies", "Deep copies through the fallback serializer", stats.UnitDimensionless)
	MFallbackSers     = stats.Int64("serialization/fallback_serializations", "Serializations through the fallback serializer", stats.UnitDimensionless)
	MFallbackDesers   = stats.Int64("serialization/fallback_deserializations", "Deserializations through the fallback serializer", stats.UnitDimensionless)
	MLargeObjects     = stats.Int64("serialization/large_object_bytes", "Bytes of allocations above the large-object threshold", stats.UnitBytes)

	MCopyTime  = stats.Int64("serialization/copy_time", "Deep copy time", "ns")
	MSerTime   = stats.Int64("serialization/serialization_time", "Serialize time", "ns")
	MDeserTime = stats.Int64("serialization/deserialization_time", "Deserialize time", "ns")
)

// OpenCensusStatistics records engine counters and timings as OpenCensus
// measures.
type OpenCensusStatistics struct{}

func (OpenCensusStatistics) RecordCopy(d time.Duration) {
	stats.Record(context.Background(), MCopies.M(1), MCopyTime.M(d.Nanoseconds()))
}

func (OpenCensusStatistics) RecordSerialization(d time.Duration) {
	stats.Record(context.Background(), MSerializations.M(1), MSerTime.M(d.Nanoseconds()))
}

func (OpenCensusStatistics) RecordDeserialization(d time.Duration) {
	stats.Record(context.Background(), MDeserializations.M(1), MDeserTime.M(d.Nanoseconds()))
}

func (OpenCensusStatistics) RecordFallbackCopy(d time.Duration) {
	stats.Record(context.Background(), MFallbackCopies.M(1), MCopyTime.M(d.Nanoseconds()))
}

func (OpenCensusStatistics) RecordFallbackSerialization(d time.Duration) {
	stats.Record(context.Background(), MFallbackSers.M(1), MSerTime.M(d.Nanoseconds()))
}

func (OpenCensusStatistics) RecordFallbackDeserialization(d time.Duration) {
	stats.Record(context.Background(), MFallbackDesers.M(1), MDeserTime.M(d.Nanoseconds()))
}

func (OpenCensusStatistics) RecordLargeObjectAllocation(typeName string, bytes int) {
	stats.Record(context.Background(), MLargeObjects.M(int64(bytes)))
}

// Views returns sum views over every engine measure, ready to register
// with view.Register.
func Views() []*view.View {
	measures := []*stats.Int64Measure{
		MCopies, MSerializations, MDeserializations,
		MFallbackCopies, MFallbackSers, MFallbackDesers,
		MLargeObjects, MCopyTime, MSerTime, MDeserTime,
	}
	views := make([]*view.View, len(measures))
	for i, m := range measures {
		views[i] = &view.View{
			Name:        m.Name(),
			Description: m.Description(),
			Measure:     m,
			Aggregation: view.Sum(),
		}
	}
	return views
}

var _ Statistics = OpenCensusStatistics{}
