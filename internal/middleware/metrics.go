package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"simple-web-proxy/internal/metrics"
)

// Metrics returns an Echo middleware that records the inbound request count,
// latency and in-flight gauge. Forwarded requests are labelled "/proxy" or
// "/raw" so that target URLs never become label values.
func Metrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)

			status := strconv.Itoa(statusOf(c, err))
			method := metrics.NormalizeMethod(c.Request().Method)
			path := metrics.NormalizePath(c.Request().URL.Path)

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			m.RequestDuration.WithLabelValues(method, status, path).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// statusOf returns the status the client will see. An *echo.HTTPError is
// written later by the central error handler, so its code wins while the
// response is still uncommitted.
func statusOf(c echo.Context, err error) int {
	var he *echo.HTTPError
	if err != nil && !c.Response().Committed && errors.As(err, &he) {
		return he.Code
	}
	return c.Response().Status
}
