package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/charonauth"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Datagram metrics
	DatagramsReceivedTotal metric.Int64Counter
	DatagramsDroppedTotal  metric.Int64Counter
	RepliesTotal           metric.Int64Counter
	HandleDuration         metric.Float64Histogram

	// Handshake metrics
	ErrorsTotal          metric.Int64Counter
	AuthSuccessTotal     metric.Int64Counter
	AuthFailureTotal     metric.Int64Counter
	SessionsCreatedTotal metric.Int64Counter

	// Action log metrics
	ActionsRecordedTotal metric.Int64Counter
	ActionsDroppedTotal  metric.Int64Counter
	ActionsRetriesTotal  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.DatagramsReceivedTotal, _ = meter.Int64Counter(
		"charon.datagrams.received.total",
		metric.WithDescription("Total number of datagrams read from the socket"),
		metric.WithUnit("{datagram}"),
	)

	m.DatagramsDroppedTotal, _ = meter.Int64Counter(
		"charon.datagrams.dropped.total",
		metric.WithDescription("Total number of datagrams dropped without a reply"),
		metric.WithUnit("{datagram}"),
	)

	m.RepliesTotal, _ = meter.Int64Counter(
		"charon.replies.total",
		metric.WithDescription("Total number of reply datagrams sent"),
		metric.WithUnit("{datagram}"),
	)

	m.HandleDuration, _ = meter.Float64Histogram(
		"charon.handle.duration",
		metric.WithDescription("Duration of datagram handling"),
		metric.WithUnit("ms"),
	)

	m.ErrorsTotal, _ = meter.Int64Counter(
		"charon.errors.total",
		metric.WithDescription("Total number of handshake errors by fault"),
		metric.WithUnit("{error}"),
	)

	m.AuthSuccessTotal, _ = meter.Int64Counter(
		"charon.auth.success.total",
		metric.WithDescription("Total number of successful authentications"),
		metric.WithUnit("{auth}"),
	)

	m.AuthFailureTotal, _ = meter.Int64Counter(
		"charon.auth.failure.total",
		metric.WithDescription("Total number of rejected handshake steps"),
		metric.WithUnit("{auth}"),
	)

	m.SessionsCreatedTotal, _ = meter.Int64Counter(
		"charon.sessions.created.total",
		metric.WithDescription("Total number of sessions created"),
		metric.WithUnit("{session}"),
	)

	m.ActionsRecordedTotal, _ = meter.Int64Counter(
		"charon.actions.recorded.total",
		metric.WithDescription("Total number of action records written"),
		metric.WithUnit("{action}"),
	)

	m.ActionsDroppedTotal, _ = meter.Int64Counter(
		"charon.actions.dropped.total",
		metric.WithDescription("Total number of action records dropped due to overflow or errors"),
		metric.WithUnit("{action}"),
	)

	m.ActionsRetriesTotal, _ = meter.Int64Counter(
		"charon.actions.retries.total",
		metric.WithDescription("Total number of action write retries"),
		metric.WithUnit("{retry}"),
	)

	return m
}
