package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// routedMethods are the methods echo's router dispatches on its own.
// Any other method never matches a route and ends in a 405.
var routedMethods = map[string]bool{
	http.MethodConnect: true,
	http.MethodDelete:  true,
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPatch:   true,
	http.MethodPost:    true,
	echo.PROPFIND:      true,
	http.MethodPut:     true,
	http.MethodTrace:   true,
	echo.REPORT:        true,
}

// ExtensionMethods returns an Echo middleware that sends requests with a
// method outside echo's routed set (MKCOL, LOCK, PURGE, ...) to h instead of
// the router's 405 handler. Register it last so the outer middleware still
// sees these requests.
func ExtensionMethods(h echo.HandlerFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if routedMethods[c.Request().Method] {
				return next(c)
			}
			return h(c)
		}
	}
}
