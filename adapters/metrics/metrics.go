// Package metrics provides Prometheus metrics collection for the CRM engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the entity engine.
type Collector struct {
	// Entity operation metrics
	EntityOps       *prometheus.CounterVec
	EntityOpErrors  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Conversion metrics
	Conversions        *prometheus.CounterVec
	ConversionFailures *prometheus.CounterVec

	// Authorization metrics
	AuthzDenials *prometheus.CounterVec

	// Webhook ingestion metrics
	WebhookIngests    *prometheus.CounterVec
	WebhookDuplicates *prometheus.CounterVec
}

// New creates a new metrics collector with all metrics registered on the
// default registry.
func New() *Collector {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates a collector registered on the given registerer. Tests use
// it with a fresh registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		EntityOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crmgate",
				Name:      "entity_operations_total",
				Help:      "Total entity operations by module and operation",
			},
			[]string{"module", "op"},
		),
		EntityOpErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crmgate",
				Name:      "entity_operation_errors_total",
				Help:      "Failed entity operations by module, operation and error kind",
			},
			[]string{"module", "op", "kind"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "crmgate",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "route", "status"},
		),
		Conversions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crmgate",
				Name:      "conversions_total",
				Help:      "Successful conversions by rule",
			},
			[]string{"rule"},
		),
		ConversionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crmgate",
				Name:      "conversion_failures_total",
				Help:      "Failed conversions by rule and kind",
			},
			[]string{"rule", "kind"},
		),
		AuthzDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crmgate",
				Name:      "authz_denials_total",
				Help:      "Authorization gate denials by module and action",
			},
			[]string{"module", "action"},
		),
		WebhookIngests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crmgate",
				Name:      "webhook_ingests_total",
				Help:      "Webhook lead ingests by source",
			},
			[]string{"source"},
		),
		WebhookDuplicates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crmgate",
				Name:      "webhook_duplicates_total",
				Help:      "Deduplicated webhook redeliveries by source",
			},
			[]string{"source"},
		),
	}
}
