package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveFetch(nil)
	m.ObserveFetch(errors.New("boom"))
	m.ObserveFetch(errors.New("boom"))
	m.AddChunksStored(7)
	m.AddChunksStored(0)
	m.ObserveAsk(OutcomeNoData)

	if got := testutil.ToFloat64(m.fetchTotal.WithLabelValues(OutcomeOK)); got != 1 {
		t.Errorf("expected 1 ok fetch, got %v", got)
	}
	if got := testutil.ToFloat64(m.fetchTotal.WithLabelValues(OutcomeError)); got != 2 {
		t.Errorf("expected 2 failed fetches, got %v", got)
	}
	if got := testutil.ToFloat64(m.chunksStored); got != 7 {
		t.Errorf("expected 7 chunks, got %v", got)
	}
	if got := testutil.ToFloat64(m.askTotal.WithLabelValues(OutcomeNoData)); got != 1 {
		t.Errorf("expected 1 no_match ask, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/health", 200, 5*time.Millisecond)
	m.ObserveTask("scrape", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`sercha_rag_http_requests_total{method="GET",route="/health",status="200"} 1`,
		`sercha_rag_tasks_processed_total{outcome="ok",type="scrape"} 1`,
		"sercha_rag_http_request_duration_seconds_bucket",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFetch(nil)
	m.AddChunksStored(3)
	m.ObserveAsk(OutcomeOK)
	m.ObserveHTTP("GET", "/", 200, time.Second)
	m.ObserveTask("scrape", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 from nil metrics, got %d", rec.Code)
	}
}
