// Package metrics declares the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "larder_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "larder_http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
	)

	PanicRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "larder_panic_recoveries_total",
			Help: "Total number of panics recovered in HTTP handlers",
		},
	)

	// Data layer metrics
	IntegrityRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_integrity_rejections_total",
			Help: "Writes rejected by uniqueness or foreign key checks",
		},
		[]string{"entity", "reason"},
	)

	ComponentsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_components_resolved_total",
			Help: "Recipe components resolved while creating dishes",
		},
		[]string{"outcome"},
	)

	DishesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "larder_dishes_created_total",
			Help: "Dishes committed by the create endpoint",
		},
	)

	// Image metrics
	ImageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_image_fetches_total",
			Help: "Remote image downloads by outcome",
		},
		[]string{"outcome"},
	)
)

const (
	ReasonConflict         = "conflict"
	ReasonMissingReference = "missing_reference"

	OutcomeReused  = "reused"
	OutcomeCreated = "created"

	OutcomeStored      = "stored"
	OutcomeUnreachable = "unreachable"
	OutcomeRejected    = "rejected"
	OutcomeFailed      = "failed"
)
