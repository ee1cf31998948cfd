package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsCountsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe("GET", "/api/v1/cart", 200, 20*time.Millisecond)
	m.Observe("GET", "/api/v1/cart", 200, 30*time.Millisecond)
	m.Observe("POST", "", 404, time.Millisecond)

	expected := `
# HELP storefront_http_requests_total HTTP requests by method, route and status.
# TYPE storefront_http_requests_total counter
storefront_http_requests_total{method="GET",route="/api/v1/cart",status="200"} 2
storefront_http_requests_total{method="POST",route="unmatched",status="404"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "storefront_http_requests_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.Observe("GET", "/", 200, time.Millisecond)
	NewHTTPMetrics(nil).Observe("GET", "/", 200, time.Millisecond)
}
