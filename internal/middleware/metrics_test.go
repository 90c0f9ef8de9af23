package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"simple-web-proxy/internal/metrics"
)

func serveWithMetrics(t *testing.T, m *metrics.Metrics, register func(e *echo.Echo), method, path string) int {
	t.Helper()
	e := echo.New()
	e.Use(Metrics(m))
	register(e)

	req := httptest.NewRequest(method, path, http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func ok(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestMetrics_ForwardedPathsCollapse(t *testing.T) {
	m := metrics.New()
	register := func(e *echo.Echo) { e.Any("/*", ok) }

	serveWithMetrics(t, m, register, http.MethodGet, "/http://example.com/a")
	serveWithMetrics(t, m, register, http.MethodGet, "/example.org/b?q=1")
	serveWithMetrics(t, m, register, http.MethodGet, "/raw/https://example.com/")

	if v := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "200", "/proxy")); v != 2 {
		t.Errorf("/proxy counter = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "200", "/raw")); v != 1 {
		t.Errorf("/raw counter = %v, want 1", v)
	}
	if n := testutil.CollectAndCount(m.RequestsTotal); n != 2 {
		t.Errorf("label combinations = %d, want 2", n)
	}
}

func TestMetrics_RecordsDuration(t *testing.T) {
	m := metrics.New()
	serveWithMetrics(t, m, func(e *echo.Echo) { e.GET("/healthz", ok) }, http.MethodGet, "/healthz")

	if n := testutil.CollectAndCount(m.RequestDuration, "simple_web_proxy_http_request_duration_seconds"); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
	if v := testutil.ToFloat64(m.RequestsInFlight); v != 0 {
		t.Errorf("in flight = %v, want 0 after the request", v)
	}
}

func TestMetrics_HTTPErrorStatus(t *testing.T) {
	m := metrics.New()
	register := func(e *echo.Echo) {
		e.GET("/proxy/status", func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "unavailable")
		})
	}

	if code := serveWithMetrics(t, m, register, http.MethodGet, "/proxy/status"); code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
	if v := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "503", "/proxy/status")); v != 1 {
		t.Errorf("503 counter = %v, want 1", v)
	}
}

func TestMetrics_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New()
	register := func(e *echo.Echo) {
		e.Any("/*", ok)
		e.Use(ExtensionMethods(ok))
	}

	if code := serveWithMetrics(t, m, register, "XYZZY", "/example.com"); code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}

	if v := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("other", "200", "/proxy")); v != 1 {
		t.Errorf("other-method counter = %v, want 1", v)
	}
}

func TestMetrics_RouterNotFound(t *testing.T) {
	m := metrics.New()
	code := serveWithMetrics(t, m, func(*echo.Echo) {}, http.MethodGet, "/nonexistent")

	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", code, http.StatusNotFound)
	}
	if v := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "404", "/proxy")); v != 1 {
		t.Errorf("404 counter = %v, want 1", v)
	}
}
