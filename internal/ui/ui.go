// Package ui holds the pages the proxy serves itself: the homepage, its
// stylesheet and script, the browser chrome wrapping a proxied page, and the
// error pages.
package ui

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/Masterminds/sprig/v3"
)

// Content types of the static assets.
const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypeCSS  = "text/css; charset=utf-8"
	ContentTypeJS   = "application/javascript; charset=utf-8"
)

//go:embed assets
var assets embed.FS

// Pages renders the proxy's own documents. It is safe for concurrent use.
type Pages struct {
	home    []byte
	styles  []byte
	script  []byte
	chrome  *template.Template
	errPage *template.Template
}

// ErrorPage describes a user-facing failure.
type ErrorPage struct {
	Status  int
	Title   string
	Heading string
	Message string
}

// New parses the embedded assets.
func New() (*Pages, error) {
	p := &Pages{}

	for name, dst := range map[string]*[]byte{
		"assets/home.html":  &p.home,
		"assets/styles.css": &p.styles,
		"assets/script.js":  &p.script,
	} {
		b, err := assets.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("ui: read %s: %w", name, err)
		}
		*dst = b
	}

	var err error
	if p.chrome, err = parseTemplate("assets/chrome.html.tmpl"); err != nil {
		return nil, err
	}
	if p.errPage, err = parseTemplate("assets/error.html.tmpl"); err != nil {
		return nil, err
	}
	return p, nil
}

func parseTemplate(name string) (*template.Template, error) {
	t, err := template.New("").Funcs(sprig.FuncMap()).ParseFS(assets, name)
	if err != nil {
		return nil, fmt.Errorf("ui: parse %s: %w", name, err)
	}
	return t.Lookup(name[len("assets/"):]), nil
}

// Home returns the homepage document.
func (p *Pages) Home() []byte { return p.home }

// Styles returns the shared stylesheet.
func (p *Pages) Styles() []byte { return p.styles }

// Script returns the client script.
func (p *Pages) Script() []byte { return p.script }

// Chrome renders the browser chrome whose frame loads /raw/<target>.
func (p *Pages) Chrome(target string) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.chrome.Execute(&buf, struct{ Target string }{target}); err != nil {
		return nil, fmt.Errorf("ui: render chrome: %w", err)
	}
	return buf.Bytes(), nil
}

// Error renders e with the homepage styling.
func (p *Pages) Error(e ErrorPage) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.errPage.Execute(&buf, e); err != nil {
		return nil, fmt.Errorf("ui: render error page: %w", err)
	}
	return buf.Bytes(), nil
}

// TooLarge is shown when the declared or buffered size exceeds the content budget.
func TooLarge() ErrorPage {
	return ErrorPage{
		Status:  http.StatusRequestEntityTooLarge,
		Heading: "Content Too Large",
		Message: "The requested content exceeds the maximum size limit.",
	}
}

// Timeout is shown when the upstream exchange exceeds its time budget.
func Timeout(target string) ErrorPage {
	return ErrorPage{
		Status:  http.StatusGatewayTimeout,
		Title:   "Timeout Error",
		Heading: "Request Timeout",
		Message: fmt.Sprintf("The request to %s timed out", target),
	}
}

// ConnectionFailed is shown for DNS, connect and transport failures.
func ConnectionFailed(detail string) ErrorPage {
	return ErrorPage{
		Status:  http.StatusInternalServerError,
		Heading: "Proxy Error",
		Message: "Error connecting to the target server: " + detail,
	}
}

// Denied is shown when the target host is excluded by the egress policy.
func Denied(host string) ErrorPage {
	return ErrorPage{
		Status:  http.StatusForbidden,
		Title:   "Forbidden",
		Heading: "Target Not Allowed",
		Message: fmt.Sprintf("The proxy is not allowed to fetch %s.", host),
	}
}
