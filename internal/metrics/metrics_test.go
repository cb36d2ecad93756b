package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersStartAtZero(t *testing.T) {
	m := New()
	if got := testutil.ToFloat64(m.ProbesSent); got != 0 {
		t.Errorf("expected 0 probes, got %v", got)
	}
	m.ProbesSent.Inc()
	m.ReportsDiscarded.WithLabelValues(ReasonUnregisteredSource).Add(2)

	if got := testutil.ToFloat64(m.ProbesSent); got != 1 {
		t.Errorf("expected 1 probe, got %v", got)
	}
	if got := testutil.ToFloat64(m.ReportsDiscarded.WithLabelValues(ReasonUnregisteredSource)); got != 2 {
		t.Errorf("expected 2 discards, got %v", got)
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.EdgesAttached.Inc()
	if got := testutil.ToFloat64(b.EdgesAttached); got != 0 {
		t.Errorf("expected separate registries, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RegistryNodes.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "meshmap_registry_nodes 3") {
		t.Errorf("expected gauge in exposition, got:\n%s", body)
	}
}
