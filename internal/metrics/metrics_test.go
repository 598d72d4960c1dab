package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEventCounts(t *testing.T) {
	m := New()

	m.Event("award", OutcomeSuccess)
	m.Event("award", OutcomeSuccess)
	m.Event("award", OutcomeRejected)

	if got := testutil.ToFloat64(m.businessEvents.WithLabelValues("award", OutcomeSuccess)); got != 2 {
		t.Errorf("award success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.businessEvents.WithLabelValues("award", OutcomeRejected)); got != 1 {
		t.Errorf("award rejected = %v, want 1", got)
	}
}

func TestPointsCounters(t *testing.T) {
	m := New()

	m.PointsAwarded(10)
	m.PointsAwarded(5)
	m.PointsSpent(100)

	if got := testutil.ToFloat64(m.pointsAwarded); got != 15 {
		t.Errorf("points awarded = %v, want 15", got)
	}
	if got := testutil.ToFloat64(m.pointsSpent); got != 100 {
		t.Errorf("points spent = %v, want 100", got)
	}
}

func TestObserveRequestUnknownRoute(t *testing.T) {
	m := New()

	m.ObserveRequest("GET", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unknown", "404")); got != 1 {
		t.Errorf("unknown route count = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.Event("award", OutcomeSuccess)
	m.PointsAwarded(5)
	m.PointsSpent(5)
	m.SetLiveClients(3)
	m.ObserveRequest("GET", "/health", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetLiveClients(2)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "curtaincall_live_clients 2") {
		t.Errorf("body missing live clients gauge:\n%s", body)
	}
}
