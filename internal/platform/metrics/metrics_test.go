package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/p-n-ai/pai-tracker/internal/platform/metrics"
)

func TestMiddleware_RecordsMatchedPattern(t *testing.T) {
	m := metrics.New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := m.Middleware(mux)

	for range 2 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/abc", nil))
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	want := `http_requests_total{endpoint="GET /v1/sessions/{id}",method="GET",status="404"} 2`
	if !strings.Contains(string(body), want) {
		t.Errorf("metrics output missing %q", want)
	}
}

func TestTrackerCounters(t *testing.T) {
	m := metrics.New()
	m.ItemsCompleted.WithLabelValues("course").Inc()
	m.ItemsCompleted.WithLabelValues("course").Inc()
	m.QuizzesScored.WithLabelValues("true").Inc()
	m.SessionsOpen.Inc()

	if got := testutil.ToFloat64(m.ItemsCompleted.WithLabelValues("course")); got != 2 {
		t.Errorf("items completed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SessionsOpen); got != 1 {
		t.Errorf("sessions open = %v, want 1", got)
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a := metrics.New()
	b := metrics.New()
	a.PersistFailures.Inc()

	if got := testutil.ToFloat64(b.PersistFailures); got != 0 {
		t.Errorf("second registry persist failures = %v, want 0", got)
	}
}
