package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) != len(labels) {
		return false
	}
	for _, lp := range metric.GetLabel() {
		if labels[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}

func TestKioskMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewKioskMetrics(reg)

	m.ObserveAuth("authenticated")
	m.ObserveAuth("rejected")
	m.ObserveAuth("rejected")
	m.ObserveGatewayCall("get_slots", "200", 0.05)
	m.ObserveSessionEvent("repaired")
	m.ObserveStaleResponse()
	m.ObserveActionFailure("delete_slot")

	if got := counterValue(t, reg, "kiosk_auth_attempts_total", map[string]string{"outcome": "rejected"}); got != 2 {
		t.Fatalf("expected 2 rejected attempts, got %v", got)
	}
	if got := counterValue(t, reg, "kiosk_gateway_requests_total", map[string]string{"call": "get_slots", "status": "200"}); got != 1 {
		t.Fatalf("expected 1 get_slots call, got %v", got)
	}
	if got := counterValue(t, reg, "kiosk_calendar_stale_responses_total", map[string]string{}); got != 1 {
		t.Fatalf("expected 1 stale response, got %v", got)
	}
	if got := counterValue(t, reg, "kiosk_actions_failures_total", map[string]string{"action": "delete_slot"}); got != 1 {
		t.Fatalf("expected 1 delete failure, got %v", got)
	}
}

func TestKioskMetricsDefaultRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	prev := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	defer func() { prometheus.DefaultRegisterer = prev }()

	m := NewKioskMetrics(nil)
	m.ObserveSessionEvent("external_sign_out")
}

func TestKioskMetricsNilSafe(t *testing.T) {
	var m *KioskMetrics
	m.ObserveAuth("rejected")
	m.ObserveGatewayCall("auth", "error", 0.1)
	m.ObserveSessionEvent("repaired")
	m.ObserveStaleResponse()
	m.ObserveActionFailure("join_queue")
}
