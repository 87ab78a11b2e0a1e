package observability

import (
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments used by the tabu server.
// Instruments are created once at startup and shared with middleware,
// handlers, and the registry service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestDuration otelmetric.Float64Histogram
	HTTPRequestTotal    otelmetric.Int64Counter
	HTTPRequestErrors   otelmetric.Int64Counter

	// Tabu list metrics
	TabuInserts    otelmetric.Int64Counter
	TabuDuplicates otelmetric.Int64Counter
	TabuEvictions  otelmetric.Int64Counter
	TabuHits       otelmetric.Int64Counter
	TabuMisses     otelmetric.Int64Counter
	TabuLists      otelmetric.Int64UpDownCounter

	// Event publishing metrics
	EventsPublished     otelmetric.Int64Counter
	EventPublishFailure otelmetric.Int64Counter
}

// NewMetrics creates all metric instruments from the given Meter.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.request.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestTotal, err = meter.Int64Counter(
		"http.request.total",
		otelmetric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestErrors, err = meter.Int64Counter(
		"http.request.errors",
		otelmetric.WithDescription("HTTP request errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, err
	}

	// Tabu list metrics
	m.TabuInserts, err = meter.Int64Counter(
		"tabu.inserts",
		otelmetric.WithDescription("Moves accepted into a tabu list"),
	)
	if err != nil {
		return nil, err
	}

	m.TabuDuplicates, err = meter.Int64Counter(
		"tabu.duplicates",
		otelmetric.WithDescription("Inserts ignored because the move was already tabu"),
	)
	if err != nil {
		return nil, err
	}

	m.TabuEvictions, err = meter.Int64Counter(
		"tabu.evictions",
		otelmetric.WithDescription("Moves evicted from a full tabu list"),
	)
	if err != nil {
		return nil, err
	}

	m.TabuHits, err = meter.Int64Counter(
		"tabu.hits",
		otelmetric.WithDescription("Membership queries that found a tabu move"),
	)
	if err != nil {
		return nil, err
	}

	m.TabuMisses, err = meter.Int64Counter(
		"tabu.misses",
		otelmetric.WithDescription("Membership queries for moves that are not tabu"),
	)
	if err != nil {
		return nil, err
	}

	m.TabuLists, err = meter.Int64UpDownCounter(
		"tabu.lists",
		otelmetric.WithDescription("Tabu lists currently held by the registry"),
	)
	if err != nil {
		return nil, err
	}

	// Event publishing metrics
	m.EventsPublished, err = meter.Int64Counter(
		"events.published",
		otelmetric.WithDescription("List lifecycle events published"),
	)
	if err != nil {
		return nil, err
	}

	m.EventPublishFailure, err = meter.Int64Counter(
		"events.publish.failure",
		otelmetric.WithDescription("List lifecycle events that failed to publish"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}
