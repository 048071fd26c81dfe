package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/signalsfoundry/terrain-traversal-sim/core"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewHTTPCollector(reg)
	if err != nil {
		t.Fatalf("NewHTTPCollector: %v", err)
	}

	r := chi.NewRouter()
	r.Use(collector.Middleware)
	r.Get("/entities/{id}", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/entities/abc", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("GET", "/entities/{id}", "404")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "http_request_duration_seconds", map[string]string{
		"method": "GET",
		"route":  "/entities/{id}",
	}); count != 1 {
		t.Fatalf("http_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestMiddlewareDefaultsStatusOK(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewHTTPCollector(reg)
	if err != nil {
		t.Fatalf("NewHTTPCollector: %v", err)
	}

	r := chi.NewRouter()
	r.Use(collector.Middleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("GET", "/health", "200")); got != 1 {
		t.Fatalf("http_requests_total{code=200} = %v, want 1", got)
	}
}

func TestCollectorReRegistrationReusesExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewHTTPCollector(reg)
	if err != nil {
		t.Fatalf("first NewHTTPCollector: %v", err)
	}
	second, err := NewHTTPCollector(reg)
	if err != nil {
		t.Fatalf("second NewHTTPCollector: %v", err)
	}
	first.Requests.WithLabelValues("GET", "/x", "200").Inc()
	if got := testutil.ToFloat64(second.Requests.WithLabelValues("GET", "/x", "200")); got != 1 {
		t.Fatalf("re-registered collector should share counters, got %v", got)
	}
}

func TestMetricsHandlerExposesStateGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewHTTPCollector(reg)
	if err != nil {
		t.Fatalf("NewHTTPCollector: %v", err)
	}
	collector.SetStateCounts(3, 7)
	collector.Requests.WithLabelValues("GET", "/run", "200").Inc()
	collector.Durations.WithLabelValues("GET", "/run").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"http_requests_total",
		"http_request_duration_seconds",
		"sim_registered_entities 3",
		"sim_run_sequence 7",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func TestSimCollectorObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.ObserveRun("canonical", core.SimulationStats{
		Entities:         4,
		StoppedEntities:  2,
		TrajectoryPoints: 120,
		SkippedSegments:  3,
		MaxTime:          42.5,
		Duration:         15 * time.Millisecond,
	})
	collector.ObserveRun("", core.SimulationStats{StoppedEntities: 1})

	if got := testutil.ToFloat64(collector.Runs.WithLabelValues("canonical")); got != 1 {
		t.Fatalf("sim_runs_total{canonical} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Runs.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("sim_runs_total{unknown} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.StoppedEntities); got != 3 {
		t.Fatalf("sim_stopped_entities_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.SkippedSegments); got != 3 {
		t.Fatalf("sim_skipped_segments_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.LastMaxTime); got != 0 {
		t.Fatalf("sim_last_run_max_time_seconds = %v, want 0 after second run", got)
	}
	if count := histogramSampleCount(t, reg, "sim_run_duration_seconds", map[string]string{"policy": "canonical"}); count != 1 {
		t.Fatalf("sim_run_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var h *HTTPCollector
	h.SetStateCounts(1, 1)
	var s *SimCollector
	s.ObserveRun("canonical", core.SimulationStats{})
	if s.Gatherer() != nil {
		t.Fatalf("nil SimCollector should have nil gatherer")
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
