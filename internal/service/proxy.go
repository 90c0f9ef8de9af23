// Package service implements the core proxy forwarding logic.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"

	"simple-web-proxy/internal/client"
	"simple-web-proxy/internal/config"
	"simple-web-proxy/internal/metrics"
	"simple-web-proxy/internal/model"
	"simple-web-proxy/internal/rewrite"
)

// sniffLen is how much of an untyped body is inspected to guess its type.
const sniffLen = 3072

// ProxyService fetches targets and prepares their responses for the browser.
type ProxyService struct {
	client   *client.UpstreamClient
	rewriter *rewrite.Rewriter
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(c *client.UpstreamClient, rw *rewrite.Rewriter, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		client:   c,
		rewriter: rw,
		cfg:      cfg,
		logger:   logger.With("component", "proxy_service"),
		metrics:  m,
	}
}

// Forward sends tr to its target and returns the sanitized response. The
// caller must close the returned body.
//
// HTML responses are buffered, decoded and rewritten, and come back with
// Buffered set. Everything else streams straight from the target. A single
// timer bounds the exchange from connect until the body is closed.
func (s *ProxyService) Forward(ctx context.Context, tr *model.TargetRequest) (*model.UpstreamResponse, error) {
	if err := s.checkPolicy(tr.URL); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeoutCause(ctx, s.cfg.Advanced.Timeout(), ErrUpstreamTimeout)

	header := outboundHeaders(&s.cfg.Proxy, tr.Header)
	var (
		body   io.Reader
		length int64
	)
	if carriesBody(tr.Method) && tr.Body != nil {
		body, length = tr.Body, tr.ContentLength
	}

	s.logger.Debug("forwarding request",
		"method", tr.Method,
		"host", tr.URL.Host,
		"mode", tr.Mode.String(),
	)

	resp, err := s.client.DoStream(ctx, tr.Method, tr.URL.String(), header, body, length)
	if err != nil {
		err = s.classify(ctx, err)
		cancel()
		return nil, err
	}

	if budget := s.cfg.Advanced.MaxContentSize; budget > 0 && resp.ContentLength > budget {
		_ = resp.Body.Close()
		cancel()
		s.countBudgetRejection()
		return nil, fmt.Errorf("%w: declared %d bytes, limit %d", ErrContentTooLarge, resp.ContentLength, budget)
	}

	out := &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     sanitizeResponseHeaders(s.cfg, resp.Header, tr.Mode, tr.URL),
	}

	if tr.Method == http.MethodHead || !bodyAllowed(resp) || !isHTML(resp.Header.Get("Content-Type")) {
		return s.stream(ctx, cancel, resp, out)
	}

	defer cancel()
	defer func() { _ = resp.Body.Close() }()
	return s.buffer(ctx, resp, tr, out)
}

// checkPolicy applies the deny_hosts patterns. Private address blocking
// happens at dial time in the client.
func (s *ProxyService) checkPolicy(u *url.URL) error {
	host := strings.ToLower(u.Hostname())
	for _, pattern := range s.cfg.Proxy.DenyHosts {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), host); ok {
			return fmt.Errorf("%w: %s matches %q", ErrTargetDenied, host, pattern)
		}
	}
	return nil
}

func (s *ProxyService) stream(ctx context.Context, cancel context.CancelFunc, resp *http.Response, out *model.UpstreamResponse) (*model.UpstreamResponse, error) {
	var r io.Reader = resp.Body

	if out.Header.Get("Content-Type") == "" && bodyAllowed(resp) {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(resp.Body, head)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			_ = resp.Body.Close()
			err = s.classify(ctx, err)
			cancel()
			return nil, err
		}
		if n > 0 {
			out.Header.Set("Content-Type", mimetype.Detect(head[:n]).String())
		}
		r = io.MultiReader(bytes.NewReader(head[:n]), resp.Body)
	}

	out.Body = &streamBody{
		Reader:    r,
		body:      resp.Body,
		ctx:       ctx,
		cancel:    cancel,
		onTimeout: s.countTimeout,
	}
	return out, nil
}

func (s *ProxyService) buffer(ctx context.Context, resp *http.Response, tr *model.TargetRequest, out *model.UpstreamResponse) (*model.UpstreamResponse, error) {
	limit := int64(-1)
	if s.cfg.Advanced.MaxContentSize > 0 && s.cfg.Advanced.StrictSizeLimit {
		limit = s.cfg.Advanced.MaxContentSize
	}

	raw, err := readLimited(resp.Body, limit)
	if err != nil {
		if errors.Is(err, ErrContentTooLarge) {
			s.countBudgetRejection()
			return nil, err
		}
		return nil, s.classify(ctx, err)
	}

	body := s.rewriteHTML(raw, resp.Header, tr, out.Header)
	if errors.Is(body.err, ErrContentTooLarge) {
		s.countBudgetRejection()
		return nil, body.err
	}

	out.Header.Set("Content-Length", strconv.Itoa(len(body.data)))
	out.Body = io.NopCloser(bytes.NewReader(body.data))
	out.Buffered = true
	return out, nil
}

type rewritten struct {
	data []byte
	err  error
}

// rewriteHTML decodes and rewrites raw. Any failure other than the content
// budget falls back to the original bytes with the original headers.
func (s *ProxyService) rewriteHTML(raw []byte, src http.Header, tr *model.TargetRequest, out http.Header) rewritten {
	if !s.rewriter.Enabled() {
		s.countRewrite(metrics.RewriteDisabled)
		return rewritten{data: raw}
	}

	limit := int64(-1)
	if s.cfg.Advanced.MaxContentSize > 0 {
		limit = s.cfg.Advanced.MaxContentSize
	}
	encoding := src.Get("Content-Encoding")
	decoded, err := decodeBody(raw, encoding, limit)
	if err != nil {
		if errors.Is(err, ErrContentTooLarge) {
			return rewritten{err: err}
		}
		s.logger.Warn("html decode failed, serving original",
			"host", tr.URL.Host,
			"encoding", encoding,
			"err", err,
		)
		s.countRewrite(metrics.RewriteFailed)
		return rewritten{data: raw}
	}

	res, err := s.rewriter.Rewrite(decoded, src.Get("Content-Type"), tr.URL)
	if err != nil {
		s.logger.Warn("html rewrite failed, serving original",
			"host", tr.URL.Host,
			"err", err,
		)
		s.countRewrite(metrics.RewriteFailed)
		return rewritten{data: raw}
	}

	s.countRewrite(metrics.RewriteOK)
	out.Del("Content-Encoding")
	out.Set("Content-Type", res.ContentType)
	return rewritten{data: res.Body}
}

// classify maps a failed exchange to the service's error kinds.
func (s *ProxyService) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(context.Cause(ctx), ErrUpstreamTimeout):
		s.countTimeout()
		return fmt.Errorf("%w after %s", ErrUpstreamTimeout, s.cfg.Advanced.Timeout())
	case errors.Is(err, client.ErrBlockedAddress):
		return fmt.Errorf("%w: %w", ErrTargetDenied, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("forward: %w", err)
	default:
		return &UpstreamError{Err: err}
	}
}

func (s *ProxyService) countTimeout() {
	if s.metrics != nil {
		s.metrics.UpstreamTimeouts.Inc()
	}
}

func (s *ProxyService) countBudgetRejection() {
	if s.metrics != nil {
		s.metrics.BudgetRejections.Inc()
	}
}

func (s *ProxyService) countRewrite(result string) {
	if s.metrics != nil {
		s.metrics.RewritesTotal.WithLabelValues(result).Inc()
	}
}

// carriesBody reports whether the inbound body is relayed for method.
func carriesBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// isHTML reports whether the media type of a Content-Type names HTML.
func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return strings.Contains(strings.ToLower(mediaType), "html")
}

func bodyAllowed(resp *http.Response) bool {
	switch {
	case resp.StatusCode >= 100 && resp.StatusCode < 200,
		resp.StatusCode == http.StatusNoContent,
		resp.StatusCode == http.StatusNotModified:
		return false
	}
	return true
}
