package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/54b3r/specqa-go/internal/logging"
	"github.com/54b3r/specqa-go/internal/rag"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, err := New(Deps{
		Querier:   &fakeQuerier{resp: &rag.Response{Answer: "ok", Sources: []rag.Citation{}}},
		Documents: corpus,
	}, &Config{
		Logger:          logging.Discard(),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopThrottle)
	return s, reg
}

// findMetric returns the first metric in family name whose labels include all
// of want, or nil.
func findMetric(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched == len(want) {
				return m
			}
		}
	}
	return nil
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	s, _ := newMetricsTestServer(t)

	w := do(t, s, http.MethodGet, "/metrics", "")

	if w.Code != http.StatusOK {
		t.Errorf("want 200, got %d", w.Code)
	}
	ct := w.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_QueryCounterIncremented(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	do(t, s, http.MethodPost, "/api/query", `{"query":"q"}`)
	do(t, s, http.MethodPost, "/api/query", `{}`)

	ok := findMetric(t, reg, "specqa_query_requests_total", map[string]string{"outcome": outcomeOK})
	if ok == nil || ok.GetCounter().GetValue() != 1 {
		t.Errorf("want specqa_query_requests_total{outcome=\"ok\"}=1, got %v", ok)
	}
	invalid := findMetric(t, reg, "specqa_query_requests_total", map[string]string{"outcome": outcomeInvalid})
	if invalid == nil || invalid.GetCounter().GetValue() != 1 {
		t.Errorf("want specqa_query_requests_total{outcome=\"invalid\"}=1, got %v", invalid)
	}
}

func Test_Metrics_InFlightGaugeReturnsToZero(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	do(t, s, http.MethodPost, "/api/query", `{"query":"q"}`)

	m := findMetric(t, reg, "specqa_query_in_flight", nil)
	if m == nil {
		t.Fatal("specqa_query_in_flight not found in gathered metrics")
	}
	if v := m.GetGauge().GetValue(); v != 0 {
		t.Errorf("want in_flight=0 after the request, got %v", v)
	}
}

func Test_Metrics_HTTPRequestsByRoute(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	do(t, s, http.MethodGet, "/api/health", "")
	do(t, s, http.MethodGet, "/no/such/route", "")

	health := findMetric(t, reg, "specqa_http_requests_total",
		map[string]string{"method": "GET", labelHandler: "/api/health", "code": "200"})
	if health == nil || health.GetCounter().GetValue() != 1 {
		t.Errorf("want one /api/health request recorded, got %v", health)
	}
	unmatched := findMetric(t, reg, "specqa_http_requests_total",
		map[string]string{labelHandler: "unmatched", "code": "404"})
	if unmatched == nil {
		t.Error("want unmatched route recorded under a fixed label")
	}
}

func Test_Metrics_AnalysisOutcome(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)
	s.analyzer = &fakeAnalyzer{}

	do(t, s, http.MethodPost, "/api/documents/summary", `{"documentId":"missing"}`)

	m := findMetric(t, reg, "specqa_analysis_requests_total",
		map[string]string{"operation": opSummary, "outcome": outcomeNotFound})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("want summary not_found=1, got %v", m)
	}
}

func TestRouteLabel(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                "unmatched",
		"POST /api/query": "/api/query",
		"GET /metrics":    "/metrics",
		"/api/health":     "/api/health",
	}
	for in, want := range cases {
		if got := routeLabel(in); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
