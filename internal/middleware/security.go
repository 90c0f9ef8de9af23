package middleware

import (
	"github.com/labstack/echo/v4"
)

// hopByHopHeaders describe the client's connection to the proxy and never
// reach the target.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// SecurityHeaders returns an Echo middleware that strips hop-by-hop headers
// from the inbound request and sets the proxy's baseline response headers.
//
// The headers are set before the handler runs so that a relayed upstream
// value replaces them instead of being duplicated. No X-Frame-Options is
// set here: the chrome page frames the proxy's own /raw responses.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, h := range hopByHopHeaders {
				c.Request().Header.Del(h)
			}

			header := c.Response().Header()
			header.Set("X-Content-Type-Options", "nosniff")
			header.Set("Referrer-Policy", "no-referrer")

			return next(c)
		}
	}
}
