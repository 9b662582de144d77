package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestCollector() *Collector {
	return NewCollector("test", prometheus.NewRegistry())
}

func TestCollectorQueryMetrics(t *testing.T) {
	c := newTestCollector()

	c.IncQueryCount("within", true)
	c.IncQueryCount("within", true)
	c.IncQueryCount("within", false)
	c.ObserveQueryDuration("within", 20*time.Millisecond)
	c.AddInvalidFeatures("target", 3)
	c.AddInvalidFeatures("target", 0)
	c.AddInvalidFeatures("reference", 1)
	c.AddPredicateFailures(2)
	c.AddPredicateFailures(0)

	tests := []struct {
		name string
		got  prometheus.Collector
		want float64
	}{
		{"success", c.queries.WithLabelValues("within", "success"), 2},
		{"error", c.queries.WithLabelValues("within", "error"), 1},
		{"invalid target", c.invalidFeatures.WithLabelValues("target"), 3},
		{"invalid reference", c.invalidFeatures.WithLabelValues("reference"), 1},
		{"predicate failures", c.predicateFailures, 2},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.got); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
	if got := testutil.CollectAndCount(c.queryDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestProgressGauge(t *testing.T) {
	c := newTestCollector()
	p := c.Progress()

	p.InitPhase(1, 4)
	p.Step(1)
	if got := testutil.ToFloat64(c.queryProgress.WithLabelValues("1")); got != 0.25 {
		t.Errorf("phase 1 progress = %v, want 0.25", got)
	}

	p.InitPhase(2, 0)
	p.Step(1)
	if got := testutil.ToFloat64(c.queryProgress.WithLabelValues("2")); got != 0 {
		t.Errorf("phase 2 progress with unknown total = %v, want 0", got)
	}

	p.InitPhase(2, 2)
	p.Step(5)
	if got := testutil.ToFloat64(c.queryProgress.WithLabelValues("2")); got != 1 {
		t.Errorf("progress past total = %v, want 1", got)
	}
}

func TestMiddlewareLabelsByRoute(t *testing.T) {
	c := newTestCollector()

	r := mux.NewRouter()
	r.Use(c.Middleware)
	r.HandleFunc("/api/v1/packages/{packageId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"zoning", "rivers", "roads"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/packages/"+id, nil))
	}

	got := testutil.ToFloat64(c.httpRequests.WithLabelValues(http.MethodGet, "/api/v1/packages/{packageId}", "4xx"))
	if got != 3 {
		t.Errorf("requests = %v, want 3", got)
	}
}

func TestHandlerServesOwnRegistry(t *testing.T) {
	c := newTestCollector()
	c.SetPackagesLoaded(2)
	c.IncStorageOperations("list", true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"test_registry_packages 2",
		`test_storage_operations_total{operation="list",status="success"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestNewCollectorDefaultRegistry(t *testing.T) {
	c := NewCollector("", nil)

	families, err := c.registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var sawGo bool
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "go_") {
			sawGo = true
		}
	}
	if !sawGo {
		t.Error("default registry should carry the Go collector")
	}
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{302, "3xx"},
		{422, "4xx"},
		{504, "5xx"},
		{42, "unknown"},
	}
	for _, tt := range tests {
		if got := statusClass(tt.code); got != tt.want {
			t.Errorf("statusClass(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
