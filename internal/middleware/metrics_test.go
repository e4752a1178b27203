package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/estatedesk/estatedesk/internal/telemetry"
)

// metricLabelsMatch reports whether a collected metric carries every label in want.
func metricLabelsMatch(dm *dto.Metric, want prometheus.Labels) bool {
	for k, v := range want {
		found := false
		for _, lp := range dm.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// counterValue reads the current value from a CounterVec for the given labels,
// or 0 when the series has not been observed yet.
func counterValue(cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	ch := make(chan prometheus.Metric, 32)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if metricLabelsMatch(&dm, labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

// histogramCount returns the sample count from a HistogramVec for the given labels.
func histogramCount(hv *prometheus.HistogramVec, labels prometheus.Labels) uint64 {
	ch := make(chan prometheus.Metric, 32)
	hv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if metricLabelsMatch(&dm, labels) {
			return dm.GetHistogram().GetSampleCount()
		}
	}
	return 0
}

// pathLabelSeen reports whether any http_requests_total series carries the
// given path label value.
func pathLabelSeen(path string) bool {
	ch := make(chan prometheus.Metric, 32)
	telemetry.HTTPRequestsTotal.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		for _, lp := range dm.GetLabel() {
			if lp.GetName() == "path" && lp.GetValue() == path {
				return true
			}
		}
	}
	return false
}

func newMetricsRouter(status int) *gin.Engine {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/threads/:threadId", func(c *gin.Context) { c.Status(status) })
	return r
}

func TestMetricsMiddleware_CountsRequestsAndDuration(t *testing.T) {
	countLabels := prometheus.Labels{"method": "GET", "path": "/threads/:threadId", "status": "200"}
	durLabels := prometheus.Labels{"method": "GET", "path": "/threads/:threadId"}
	beforeCount := counterValue(telemetry.HTTPRequestsTotal, countLabels)
	beforeDur := histogramCount(telemetry.HTTPRequestDuration, durLabels)

	r := newMetricsRouter(http.StatusOK)
	req := httptest.NewRequest(http.MethodGet, "/threads/th-42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if after := counterValue(telemetry.HTTPRequestsTotal, countLabels); after-beforeCount < 1 {
		t.Errorf("http_requests_total not incremented: before=%.0f after=%.0f", beforeCount, after)
	}
	if after := histogramCount(telemetry.HTTPRequestDuration, durLabels); after <= beforeDur {
		t.Errorf("http_request_duration_seconds sample count did not increase: before=%d after=%d", beforeDur, after)
	}
}

func TestMetricsMiddleware_UsesRouteTemplateNotRawURL(t *testing.T) {
	r := newMetricsRouter(http.StatusOK)
	req := httptest.NewRequest(http.MethodGet, "/threads/th-42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if pathLabelSeen("/threads/th-42") {
		t.Error("raw URL /threads/th-42 leaked into the path label; expected the /threads/:threadId template")
	}
}

func TestMetricsMiddleware_UnmatchedRouteUsesSentinel(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())
	// no routes registered, every request 404s

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if !pathLabelSeen("<no-route>") {
		t.Error("expected path label <no-route> for unmatched request")
	}
}

func TestMetricsMiddleware_RecordsErrorStatus(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "path": "/threads/:threadId", "status": "500"}
	before := counterValue(telemetry.HTTPRequestsTotal, labels)

	r := newMetricsRouter(http.StatusInternalServerError)
	req := httptest.NewRequest(http.MethodGet, "/threads/th-err", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if after := counterValue(telemetry.HTTPRequestsTotal, labels); after-before < 1 {
		t.Errorf("http_requests_total for status=500 not incremented: before=%.0f after=%.0f", before, after)
	}
}
