// Package target turns the path of an inbound request into the absolute URL
// the proxy should fetch.
package target

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidTarget is returned for targets that are malformed or have no hostname.
var ErrInvalidTarget = errors.New("invalid target URL")

// schemePrefix matches an RFC 3986 scheme followed by "://".
var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://`)

// Resolve interprets raw (the inbound path without its leading "/") as a
// target URL. Values without a scheme are taken as http. Only the syntax is
// checked; reachability is left to the forwarder.
func Resolve(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty target", ErrInvalidTarget)
	}

	if !schemePrefix.MatchString(raw) {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: no hostname in %q", ErrInvalidTarget, raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	return u, nil
}

// Origin returns scheme://host for u.
func Origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// ProxyPath returns the proxy-local path that re-enters the proxy for abs.
func ProxyPath(abs string) string {
	return "/" + abs
}

// IsProxyPath reports whether v is already a proxy-local path produced by ProxyPath.
func IsProxyPath(v string) bool {
	lower := strings.ToLower(v)
	return strings.HasPrefix(lower, "/http://") || strings.HasPrefix(lower, "/https://")
}
