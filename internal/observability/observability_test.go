package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.FramesDropped.WithLabelValues(DropBackpressure).Inc()
	m.FramesDropped.WithLabelValues(DropBackpressure).Inc()
	m.SessionsStarted.Inc()

	if got := testutil.ToFloat64(m.FramesDropped.WithLabelValues(DropBackpressure)); got != 2 {
		t.Fatalf("dropped = %v, want 2", got)
	}
	if n, err := testutil.GatherAndCount(reg, "koewake_sessions_started_total"); err != nil || n != 1 {
		t.Fatalf("GatherAndCount = %d, %v", n, err)
	}
}

func TestRouterServesMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.EventsMalformed.Inc()

	srv := httptest.NewServer(NewRouter(reg))
	defer srv.Close()

	body := get(t, srv.URL+"/healthz")
	if body != "ok" {
		t.Fatalf("healthz body = %q", body)
	}
	body = get(t, srv.URL+"/metrics")
	if !strings.Contains(body, "koewake_events_malformed_total 1") {
		t.Fatalf("metrics output missing counter:\n%s", body)
	}
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}
