package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSyncMetricsExportsCountersAndHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewSyncMetrics(reg)

	metrics.IncAccepted("contact")
	metrics.IncAccepted("contact")
	metrics.IncRejected("invalid_aggregate_type")
	metrics.IncHashCheck()
	metrics.ObservePush(120 * time.Millisecond)
	metrics.ObservePull(80 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "sync_events_accepted_total", "aggregate_type", "contact"); err != nil {
		t.Fatalf("fetch accepted: %v", err)
	} else if got != 2 {
		t.Fatalf("expected accepted=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "sync_events_rejected_total", "reason", "invalid_aggregate_type"); err != nil {
		t.Fatalf("fetch rejected: %v", err)
	} else if got != 1 {
		t.Fatalf("expected rejected=1, got %f", got)
	}
}

func TestSyncMetricsNilReceiverIsSafe(t *testing.T) {
	var metrics *SyncMetrics
	metrics.IncAccepted("contact")
	metrics.IncRejected("x")
	metrics.IncHashCheck()
	metrics.ObservePush(time.Second)
	metrics.ObservePull(time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("label %s=%s not found for %q", label, value, name)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
