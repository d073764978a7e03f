package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Peek outcome labels.
const (
	PeekOutcomeEmpty        = "empty"
	PeekOutcomeMaterialized = "materialized"
	PeekOutcomeRepeat       = "repeat"
)

// Close trigger labels.
const (
	CloseTriggerWindow = "window"
	CloseTriggerSize   = "size"
)

// MailboxMetrics tracks the message lifecycle from enqueue to dequeue.
type MailboxMetrics struct {
	enqueued      *prometheus.CounterVec
	closed        *prometheus.CounterVec
	materialized  *prometheus.CounterVec
	peeks         *prometheus.CounterVec
	dequeues      prometheus.Counter
	documentBytes *prometheus.HistogramVec
}

// NewMailboxMetrics registers the mailbox metrics on the provided registerer.
func NewMailboxMetrics(reg prometheus.Registerer) *MailboxMetrics {
	if reg == nil {
		return &MailboxMetrics{}
	}
	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailbox_messages_enqueued_total",
		Help: "Messages accepted into the mailbox.",
	}, []string{"category"})
	closed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailbox_bundles_closed_total",
		Help: "Bundles closed, by trigger.",
	}, []string{"trigger"})
	materialized := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailbox_bundles_materialized_total",
		Help: "Bundles turned into wire documents, by format.",
	}, []string{"format"})
	peeks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailbox_peeks_total",
		Help: "Peek requests, by outcome.",
	}, []string{"outcome"})
	dequeues := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailbox_dequeues_total",
		Help: "Bundles acknowledged and finalized.",
	})
	documentBytes := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailbox_document_bytes",
		Help:    "Size of materialized wire documents in bytes.",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	}, []string{"format"})
	reg.MustRegister(enqueued, closed, materialized, peeks, dequeues, documentBytes)
	return &MailboxMetrics{
		enqueued:      enqueued,
		closed:        closed,
		materialized:  materialized,
		peeks:         peeks,
		dequeues:      dequeues,
		documentBytes: documentBytes,
	}
}

// IncEnqueued counts an accepted message.
func (m *MailboxMetrics) IncEnqueued(category string) {
	if m == nil || m.enqueued == nil {
		return
	}
	m.enqueued.WithLabelValues(normalizeLabel(category)).Inc()
}

// IncClosed counts a closed bundle by its trigger.
func (m *MailboxMetrics) IncClosed(trigger string) {
	if m == nil || m.closed == nil {
		return
	}
	m.closed.WithLabelValues(normalizeLabel(trigger)).Inc()
}

// ObserveMaterialized counts a materialized bundle and records the document size.
func (m *MailboxMetrics) ObserveMaterialized(format string, sizeBytes int) {
	if m == nil || m.materialized == nil {
		return
	}
	label := normalizeLabel(format)
	m.materialized.WithLabelValues(label).Inc()
	m.documentBytes.WithLabelValues(label).Observe(float64(sizeBytes))
}

// IncPeek counts a peek request by outcome.
func (m *MailboxMetrics) IncPeek(outcome string) {
	if m == nil || m.peeks == nil {
		return
	}
	m.peeks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncDequeued counts a finalized delivery.
func (m *MailboxMetrics) IncDequeued() {
	if m == nil || m.dequeues == nil {
		return
	}
	m.dequeues.Inc()
}
