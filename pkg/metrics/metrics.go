// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for coapfs.
//
// All recording methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for DatagramsDropped.
const (
	DropQueueFull   = "queue_full"
	DropRateLimited = "rate_limited"
)

// Metrics holds all Prometheus metrics for coapfs.
type Metrics struct {
	// Transport metrics
	DatagramsReceived prometheus.Counter
	DatagramsDropped  *prometheus.CounterVec
	DecodeErrors      *prometheus.CounterVec
	QueueDepth        prometheus.Gauge
	RateLimitSenders  prometheus.Gauge

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     prometheus.Histogram
	ResponseSize    prometheus.Histogram
	UndefinedClass  prometheus.Counter

	// Storage metrics
	BreakerState prometheus.Gauge
	BreakerTrips prometheus.Counter

	// Resource metrics
	GoroutinesActive prometheus.Gauge
}

// New creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "coapfs"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		DatagramsReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "datagrams_received_total",
				Help:      "Total number of datagrams read from the socket",
			},
		),
		DatagramsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "datagrams_dropped_total",
				Help:      "Total number of datagrams dropped before decoding",
			},
			[]string{"reason"},
		),
		DecodeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_errors_total",
				Help:      "Total number of datagrams that failed to decode",
			},
			[]string{"reason"},
		),
		RateLimitSenders: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ratelimit_senders",
				Help:      "Number of senders with a rate limit bucket",
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Number of datagrams waiting for a worker",
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests answered",
			},
			[]string{"method", "code"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request handling duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RequestSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_size_bytes",
				Help:      "Request payload size in bytes",
				Buckets:   []float64{0, 16, 128, 1024, 4096, 16384, 65536},
			},
		),
		ResponseSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "response_size_bytes",
				Help:      "Response payload size in bytes",
				Buckets:   []float64{0, 16, 128, 1024, 4096, 16384, 65536},
			},
		),
		UndefinedClass: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "undefined_class_total",
				Help:      "Total number of requests with an undefined code class",
			},
		),
		BreakerState: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "storage_breaker_state",
				Help:      "Storage circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
		),
		BreakerTrips: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_breaker_trips_total",
				Help:      "Total number of times the storage circuit breaker opened",
			},
		),
		GoroutinesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines_active",
				Help:      "Number of goroutines at the last health check",
			},
		),
	}
}

// DatagramReceived counts a datagram read from the socket.
func (m *Metrics) DatagramReceived() {
	if m == nil {
		return
	}
	m.DatagramsReceived.Inc()
}

// DatagramDropped counts a datagram discarded before decoding.
func (m *Metrics) DatagramDropped(reason string) {
	if m == nil {
		return
	}
	m.DatagramsDropped.WithLabelValues(reason).Inc()
}

// DecodeFailed counts a datagram that could not be decoded.
func (m *Metrics) DecodeFailed(reason string) {
	if m == nil {
		return
	}
	m.DecodeErrors.WithLabelValues(reason).Inc()
}

// SetQueueDepth records the number of queued datagrams.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// SetRateLimitSenders records the number of senders tracked by the rate limiter.
func (m *Metrics) SetRateLimitSenders(n int) {
	if m == nil {
		return
	}
	m.RateLimitSenders.Set(float64(n))
}

// ObserveRequest records one answered request.
func (m *Metrics) ObserveRequest(method, code string, d time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, code).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(d.Seconds())
	m.RequestSize.Observe(float64(reqSize))
	m.ResponseSize.Observe(float64(respSize))
}

// UndefinedClassSeen counts a request with an undefined code class.
func (m *Metrics) UndefinedClassSeen() {
	if m == nil {
		return
	}
	m.UndefinedClass.Inc()
}

// BreakerStateChanged records a storage circuit breaker transition.
// open reports whether the new state is the open state.
func (m *Metrics) BreakerStateChanged(state int, open bool) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
	if open {
		m.BreakerTrips.Inc()
	}
}
