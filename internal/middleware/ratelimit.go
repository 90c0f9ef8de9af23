package middleware

import (
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"simple-web-proxy/internal/config"
)

// RateLimiter returns a per-client-IP limiter for cfg. The burst is one
// second's worth of requests, so a page and its first subresources are not
// rejected together.
func RateLimiter(cfg config.RateLimitConfig) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RequestsPerSecond),
		Burst:     max(1, int(math.Ceil(cfg.RequestsPerSecond))),
		ExpiresIn: 3 * time.Minute,
	})

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return c.String(http.StatusForbidden, "Forbidden")
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			c.Response().Header().Set("Retry-After", "1")
			return c.String(http.StatusTooManyRequests, "Too Many Requests")
		},
	})
}
