package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders_AddsHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := rec.Header().Get("X-Content-Type-Options"); v != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", v, "nosniff")
	}
	if v := rec.Header().Get("Referrer-Policy"); v != "no-referrer" {
		t.Errorf("Referrer-Policy = %q, want %q", v, "no-referrer")
	}
	if v := rec.Header().Get("X-Frame-Options"); v != "" {
		t.Errorf("X-Frame-Options = %q, want unset", v)
	}
}

func TestSecurityHeaders_HandlerValueWins(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/test", func(c echo.Context) error {
		c.Response().Header()["Referrer-Policy"] = []string{"origin"}
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := rec.Header().Values("Referrer-Policy"); len(v) != 1 || v[0] != "origin" {
		t.Errorf("Referrer-Policy = %v, want [origin]", v)
	}
}

func TestSecurityHeaders_StripsHopByHop(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())

	var gotConnection, gotProxyAuth, gotCookie string
	e.GET("/test", func(c echo.Context) error {
		gotConnection = c.Request().Header.Get("Connection")
		gotProxyAuth = c.Request().Header.Get("Proxy-Authorization")
		gotCookie = c.Request().Header.Get("Cookie")
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	req.Header.Set("Cookie", "a=b")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if gotConnection != "" {
		t.Errorf("Connection header should be stripped, got %q", gotConnection)
	}
	if gotProxyAuth != "" {
		t.Errorf("Proxy-Authorization header should be stripped, got %q", gotProxyAuth)
	}
	if gotCookie != "a=b" {
		t.Errorf("Cookie = %q, want it left for the forwarder", gotCookie)
	}
}
