package service

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"simple-web-proxy/internal/config"
	"simple-web-proxy/internal/model"
	"simple-web-proxy/internal/rewrite"
)

const (
	outboundAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	outboundAcceptLanguage = "en-US,en;q=0.5"
	noStore                = "no-store, no-cache, must-revalidate"
)

// passthroughRequestHeaders are the only inbound headers relayed to the target.
var passthroughRequestHeaders = []string{
	"Accept",
	"Content-Type",
	"Content-Length",
}

// trackingResponseHeaders identify the origin or let it follow the user.
var trackingResponseHeaders = []string{
	"Set-Cookie",
	"X-Powered-By",
	"Server",
	"CF-Ray",
	"CF-Cache-Status",
	"Report-To",
	"NEL",
}

// hopByHopHeaders apply to a single connection and are never relayed.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// outboundHeaders builds the header set sent to the target. It starts from a
// fixed browser-like profile and adds only the passthrough headers from the
// inbound request; cookies, credentials and forwarding headers never leave.
func outboundHeaders(cfg *config.ProxyConfig, inbound http.Header) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", cfg.UserAgent)
	h.Set("Accept", outboundAccept)
	h.Set("Accept-Language", outboundAcceptLanguage)
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h["Referer"] = []string{""}
	if cfg.DoNotTrack {
		h.Set("DNT", "1")
	}

	for _, key := range passthroughRequestHeaders {
		if vals := inbound.Values(key); len(vals) > 0 {
			h[http.CanonicalHeaderKey(key)] = slices.Clone(vals)
		}
	}
	return h
}

// sanitizeResponseHeaders returns a copy of the target's headers with privacy
// and framing policy applied for the given delivery mode.
func sanitizeResponseHeaders(cfg *config.Config, src http.Header, mode model.Mode, page *url.URL) http.Header {
	h := src.Clone()
	if h == nil {
		h = make(http.Header)
	}

	for _, token := range h.Values("Connection") {
		for _, name := range strings.Split(token, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, key := range hopByHopHeaders {
		h.Del(key)
	}

	if cfg.Proxy.RemoveTracking {
		for _, key := range trackingResponseHeaders {
			h.Del(key)
		}
	}
	if cfg.Proxy.ClearCookies {
		h.Del("Set-Cookie")
	}

	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", noStore)
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")

	if mode == model.ModeIframe {
		if cfg.Proxy.RemoveFrameOptions {
			h.Del("X-Frame-Options")
		}
		if cfg.Proxy.RemoveContentSecurityPolicy {
			h.Del("Content-Security-Policy")
			h.Del("Content-Security-Policy-Report-Only")
		}
		h.Set("Access-Control-Allow-Origin", "*")
	}

	if cfg.Advanced.RewriteURLs {
		if loc := h.Get("Location"); loc != "" {
			h.Set("Location", rewriteLocation(loc, page, mode))
		}
	}
	return h
}

// rewriteLocation keeps redirects inside the proxy. Inside the frame the
// redirect stays on the raw route so the chrome is not nested.
func rewriteLocation(loc string, page *url.URL, mode model.Mode) string {
	v := rewrite.RewriteValue(loc, page)
	if v == loc || mode != model.ModeIframe {
		return v
	}
	return "/raw" + v
}
