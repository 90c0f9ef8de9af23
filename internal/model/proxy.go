// Package model defines shared types for the proxy.
package model

import (
	"io"
	"net/http"
	"net/url"
)

// Mode selects how a proxied response is delivered to the browser.
type Mode int

const (
	// ModeDirect serves the target's bytes to a client that did not ask for an HTML page.
	ModeDirect Mode = iota
	// ModeIframe serves the target's bytes into the sandboxed frame of the chrome page.
	ModeIframe
	// ModeWrapped serves the browser-chrome page instead of forwarding.
	ModeWrapped
)

func (m Mode) String() string {
	switch m {
	case ModeIframe:
		return "iframe"
	case ModeWrapped:
		return "wrapped"
	default:
		return "direct"
	}
}

// TargetRequest is a client request to be forwarded to the resolved target.
type TargetRequest struct {
	URL           *url.URL
	Mode          Mode
	Method        string
	Header        http.Header
	Body          io.Reader // nil unless the method carries a body
	ContentLength int64
}

// UpstreamResponse is the target's response after header sanitizing. Body is
// either the live upstream stream or, for HTML, the rewritten buffer.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Buffered   bool
}
