// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	WebhooksReceived  *prometheus.CounterVec
	SignatureRejected prometheus.Counter
	RecordsWritten    *prometheus.CounterVec
	ReconcileMisses   *prometheus.CounterVec
	Escalations       prometheus.Counter
}

// New creates and registers the collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WebhooksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutortrack",
			Name:      "webhooks_received_total",
			Help:      "Webhook requests accepted, by event type.",
		}, []string{"event"}),
		SignatureRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tutortrack",
			Name:      "webhook_signature_rejections_total",
			Help:      "Webhook requests rejected at the signature gate.",
		}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutortrack",
			Name:      "records_written_total",
			Help:      "Attendance records written, by status.",
		}, []string{"status"}),
		ReconcileMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutortrack",
			Name:      "reconcile_misses_total",
			Help:      "Ended events dropped without a record, by reason.",
		}, []string{"reason"}),
		Escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tutortrack",
			Name:      "escalations_total",
			Help:      "Escalation notices raised.",
		}),
	}
	reg.MustRegister(
		m.WebhooksReceived,
		m.SignatureRejected,
		m.RecordsWritten,
		m.ReconcileMisses,
		m.Escalations,
	)
	return m
}
