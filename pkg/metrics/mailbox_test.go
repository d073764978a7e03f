package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMailboxMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMailboxMetrics(reg)

	metrics.IncEnqueued("measure-data")
	metrics.IncClosed(CloseTriggerWindow)
	metrics.ObserveMaterialized("cim-xml", 4096)
	metrics.IncPeek(PeekOutcomeMaterialized)
	metrics.IncPeek(PeekOutcomeEmpty)
	metrics.IncDequeued()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "mailbox_messages_enqueued_total", "category", "measure-data"); err != nil {
		t.Fatalf("fetch enqueued: %v", err)
	} else if got != 1 {
		t.Fatalf("expected enqueued=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "mailbox_bundles_closed_total", "trigger", CloseTriggerWindow); err != nil {
		t.Fatalf("fetch closed: %v", err)
	} else if got != 1 {
		t.Fatalf("expected closed=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "mailbox_peeks_total", "outcome", PeekOutcomeMaterialized); err != nil {
		t.Fatalf("fetch peeks: %v", err)
	} else if got != 1 {
		t.Fatalf("expected peeks=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "mailbox_document_bytes", "format", "cim-xml"); err != nil {
		t.Fatalf("fetch document bytes: %v", err)
	} else if got != 4096 {
		t.Fatalf("expected document bytes sum 4096, got %f", got)
	}
}

func TestMailboxMetricsNilRegistererIsNoop(t *testing.T) {
	metrics := NewMailboxMetrics(nil)
	metrics.IncEnqueued("aggregations")
	metrics.IncClosed(CloseTriggerSize)
	metrics.ObserveMaterialized("ebix", 100)
	metrics.IncPeek(PeekOutcomeRepeat)
	metrics.IncDequeued()
}
