package telemetry

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics_Singleton(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	if a != b {
		t.Fatal("NewMetrics returned different instances")
	}
}

func TestRecordUsage(t *testing.T) {
	m := NewMetrics()
	before := counterValue(t, m, "usage-test-model")
	m.RecordUsage("embedding", "usage-test-model", 120, 0)
	m.RecordUsage("embedding", "usage-test-model", 0, 0)
	after := counterValue(t, m, "usage-test-model")
	if after-before != 120 {
		t.Errorf("tokens delta = %v, want 120", after-before)
	}
}

func TestTracer(t *testing.T) {
	if Tracer() == nil {
		t.Fatal("Tracer returned nil")
	}
}

func counterValue(t *testing.T, m *Metrics, model string) float64 {
	t.Helper()
	var pb dto.Metric
	if err := m.ProviderTokensTotal.WithLabelValues("embedding", model).Write(&pb); err != nil {
		t.Fatal(err)
	}
	return pb.GetCounter().GetValue()
}
