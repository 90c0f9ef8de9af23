package handler

import (
	"net/http"
	"strings"

	"simple-web-proxy/internal/model"
)

// rawPrefix marks requests made by the chrome page's frame.
const rawPrefix = "raw/"

// Dispatch decides how a request for rawPath (the request-target without its
// leading slash) is delivered, and returns the target to fetch.
//
// "raw/<url>" is always fetched for the frame. Otherwise a client that asks
// for HTML gets the browser chrome, and anything else is fetched directly.
func Dispatch(rawPath, accept string) (model.Mode, string) {
	if rest, ok := strings.CutPrefix(rawPath, rawPrefix); ok {
		return model.ModeIframe, rest
	}
	if strings.Contains(accept, "text/html") {
		return model.ModeWrapped, rawPath
	}
	return model.ModeDirect, rawPath
}

// rawTarget returns the request-target as sent by the client, minus the
// leading slash. The query string is part of the target.
func rawTarget(r *http.Request) string {
	uri := r.RequestURI
	if uri == "" {
		uri = r.URL.RequestURI()
	}
	return strings.TrimPrefix(uri, "/")
}
