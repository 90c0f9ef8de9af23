package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"simple-web-proxy/internal/config"
	"simple-web-proxy/internal/metrics"
	"simple-web-proxy/internal/middleware"
)

// RegisterRoutes wires all route handlers onto the Echo instance. The proxy's
// own pages are matched first; every other path is a target. Methods the
// router does not know are forwarded regardless of path.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, static *StaticHandler, health *HealthHandler, m *metrics.Metrics) {
	e.Any("/", static.Home)
	e.Any("/favicon.ico", static.Home)
	e.Any("/styles.css", static.Styles)
	e.Any("/script.js", static.Script)

	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/*", proxy.Handle)
	e.Use(middleware.ExtensionMethods(proxy.Handle))
}
