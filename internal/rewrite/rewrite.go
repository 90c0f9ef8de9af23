// Package rewrite rewrites HTML documents so that navigation from a proxied
// page re-enters the proxy.
//
// Every href, src and action attribute goes through three ordered passes:
//
//  1. root-relative values ("/about") become absolute on the page origin;
//  2. remaining relative references are resolved against the page URL;
//  3. absolute http(s) URLs become proxy-local paths ("/http://host/about").
//
// A <base> element pinned to the page origin is then added when the document
// has none, and scripts probing the page location can optionally be dropped.
package rewrite

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"simple-web-proxy/internal/target"
)

// RemovedScriptComment replaces scripts dropped by RemoveScripts.
const RemovedScriptComment = "<!-- script removed for proxy compatibility -->"

// linkAttrs are the attributes carrying navigable URLs.
var linkAttrs = []string{"href", "src", "action"}

// locationProbes mark scripts that inspect or change the page location.
var locationProbes = []string{"document.domain", "window.location", "top.location", "self.location"}

// nonRelativePrefixes are never treated as relative references.
var nonRelativePrefixes = []string{"//", "#", "javascript:", "mailto:", "data:"}

var schemeRE = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)

// Options selects which transformations run.
type Options struct {
	RewriteURLs   bool
	RemoveScripts bool
}

// Rewriter applies Options to HTML documents. It is safe for concurrent use.
type Rewriter struct {
	opts Options
}

// New creates a Rewriter.
func New(opts Options) *Rewriter {
	return &Rewriter{opts: opts}
}

// Enabled reports whether Rewrite would change anything at all.
func (r *Rewriter) Enabled() bool {
	return r.opts.RewriteURLs || r.opts.RemoveScripts
}

// Result is a rewritten document.
type Result struct {
	Body        []byte
	ContentType string
	Transcoded  bool
}

// Rewrite parses doc (served with contentType from page) and returns the
// rewritten document, always UTF-8 encoded. On error the caller should serve
// the original bytes.
func (r *Rewriter) Rewrite(doc []byte, contentType string, page *url.URL) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("rewrite: panic: %v", p)
		}
	}()

	utf8Doc, transcoded, err := ToUTF8(doc, contentType)
	if err != nil {
		return nil, fmt.Errorf("rewrite: decode: %w", err)
	}

	d, err := goquery.NewDocumentFromReader(bytes.NewReader(utf8Doc))
	if err != nil {
		return nil, fmt.Errorf("rewrite: parse: %w", err)
	}

	if r.opts.RewriteURLs {
		rewriteLinks(d, page)
		insertBase(d, page)
	}
	if r.opts.RemoveScripts {
		removeProbingScripts(d)
	}

	out, err := d.Html()
	if err != nil {
		return nil, fmt.Errorf("rewrite: render: %w", err)
	}

	res = &Result{Body: []byte(out), ContentType: contentType, Transcoded: transcoded}
	if transcoded {
		res.ContentType = withUTF8Charset(contentType)
	}
	return res, nil
}

func rewriteLinks(d *goquery.Document, page *url.URL) {
	d.Find("[href],[src],[action]").Not("base").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range linkAttrs {
			v, ok := s.Attr(attr)
			if !ok {
				continue
			}
			if nv := RewriteValue(v, page); nv != v {
				s.SetAttr(attr, nv)
			}
		}
	})
}

// RewriteValue runs the three passes over a single attribute value. Values
// that are already proxy-local are returned unchanged. An empty value is a
// reference to the page itself.
func RewriteValue(v string, page *url.URL) string {
	value := strings.TrimSpace(v)
	if target.IsProxyPath(value) {
		return v
	}

	value = absolutizeRootRelative(value, page)
	value = resolveRelative(value, page)
	if !isHTTPURL(value) {
		return v
	}
	return target.ProxyPath(value)
}

// absolutizeRootRelative is the first pass. Scheme-relative values take the
// page scheme.
func absolutizeRootRelative(v string, page *url.URL) string {
	switch {
	case strings.HasPrefix(v, "//"):
		return page.Scheme + ":" + v
	case strings.HasPrefix(v, "/"):
		return target.Origin(page) + v
	}
	return v
}

// resolveRelative is the second pass.
func resolveRelative(v string, page *url.URL) string {
	if v == "" {
		self := *page
		self.Fragment, self.RawFragment = "", ""
		return self.String()
	}
	lower := strings.ToLower(v)
	for _, p := range nonRelativePrefixes {
		if strings.HasPrefix(lower, p) {
			return v
		}
	}
	if schemeRE.MatchString(v) {
		return v
	}
	ref, err := url.Parse(v)
	if err != nil {
		return v
	}
	return page.ResolveReference(ref).String()
}

func isHTTPURL(v string) bool {
	lower := strings.ToLower(v)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func insertBase(d *goquery.Document, page *url.URL) {
	if d.Find("base").Length() > 0 {
		return
	}
	tag := fmt.Sprintf(`<base href="%s/">`, html.EscapeString(target.Origin(page)))
	d.Find("head").First().PrependHtml(tag)
}

func removeProbingScripts(d *goquery.Document) {
	d.Find("script").Each(func(_ int, s *goquery.Selection) {
		markup, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		for _, probe := range locationProbes {
			if strings.Contains(markup, probe) {
				s.ReplaceWithHtml(RemovedScriptComment)
				return
			}
		}
	})
}
