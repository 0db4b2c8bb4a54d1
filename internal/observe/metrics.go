// Package observe holds the OpenTelemetry metric instruments shared by the
// acoustic, linguist and decoder packages.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is bound to
// the global meter provider. Tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all dflat metrics.
const meterName = "github.com/ieee0824/dflat"

// Metrics holds all metric instruments. All fields are safe for concurrent
// use.
type Metrics struct {
	// SuccessorCache reports successor lookups on search states with
	// attribute.String("result", "hit"|"miss"). Lookups are counted in
	// memory and observed on collection.
	SuccessorCache metric.Int64ObservableCounter

	// States counts search states created. Use with
	// attribute.String("kind", ...).
	States metric.Int64Counter

	// CompileDuration tracks search graph compilation latency.
	CompileDuration metric.Float64Histogram

	// LazyHMMBuilds counts HMMs constructed on demand from an event map.
	LazyHMMBuilds metric.Int64Counter

	// DecoderFrames counts feature frames consumed by the decoder.
	DecoderFrames metric.Int64Counter

	// DecodeDuration tracks whole-utterance decode latency.
	DecodeDuration metric.Float64Histogram

	successorHits   atomic.Int64
	successorMisses atomic.Int64
}

var (
	hitAttrs  = metric.WithAttributeSet(attribute.NewSet(attribute.String("result", "hit")))
	missAttrs = metric.WithAttributeSet(attribute.NewSet(attribute.String("result", "miss")))
)

// latencyBuckets defines histogram bucket boundaries in seconds.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SuccessorCache, err = m.Int64ObservableCounter("dflat.linguist.successor_cache",
		metric.WithDescription("Search state successor lookups by cache result."),
	); err != nil {
		return nil, err
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(met.SuccessorCache, met.successorHits.Load(), hitAttrs)
		o.ObserveInt64(met.SuccessorCache, met.successorMisses.Load(), missAttrs)
		return nil
	}, met.SuccessorCache); err != nil {
		return nil, err
	}
	if met.States, err = m.Int64Counter("dflat.linguist.states",
		metric.WithDescription("Search states created by kind."),
	); err != nil {
		return nil, err
	}
	if met.CompileDuration, err = m.Float64Histogram("dflat.linguist.compile.duration",
		metric.WithDescription("Latency of search graph compilation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LazyHMMBuilds, err = m.Int64Counter("dflat.acoustic.lazy_hmm.builds",
		metric.WithDescription("HMMs built on demand from the context decision tree."),
	); err != nil {
		return nil, err
	}
	if met.DecoderFrames, err = m.Int64Counter("dflat.decoder.frames",
		metric.WithDescription("Feature frames decoded."),
	); err != nil {
		return nil, err
	}
	if met.DecodeDuration, err = m.Float64Histogram("dflat.decoder.duration",
		metric.WithDescription("Latency of decoding one utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordSuccessorLookup records one successor cache lookup. It only
// increments a counter and does not allocate.
func (m *Metrics) RecordSuccessorLookup(_ context.Context, hit bool) {
	if hit {
		m.successorHits.Add(1)
		return
	}
	m.successorMisses.Add(1)
}

// RecordState records the creation of a search state of the given kind.
func (m *Metrics) RecordState(ctx context.Context, kind string) {
	m.States.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordCompile records how long a search graph compilation took.
func (m *Metrics) RecordCompile(ctx context.Context, d time.Duration) {
	m.CompileDuration.Record(ctx, d.Seconds())
}

// RecordDecode records a finished decode of n frames.
func (m *Metrics) RecordDecode(ctx context.Context, frames int, d time.Duration) {
	m.DecoderFrames.Add(ctx, int64(frames))
	m.DecodeDuration.Record(ctx, d.Seconds())
}
