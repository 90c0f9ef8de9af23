// Package client provides the outbound HTTP client used to fetch target pages.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"simple-web-proxy/internal/config"
	"simple-web-proxy/internal/metrics"
)

// UpstreamClient sends requests to arbitrary target hosts.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
//
// The client has no overall timeout and never follows redirects: the caller's
// context bounds the exchange and redirects are relayed to the browser.
// Compression is left to the caller so that HTML can be decoded explicitly
// and everything else passes through with its original encoding.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	dial := dialer.DialContext
	if cfg.Proxy.BlockPrivateNetworks {
		dial = newSafeDialer(dialer).DialContext
	}

	transport := &http.Transport{
		MaxIdleConns:          cfg.Proxy.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Proxy.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
		DialContext:           dial,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the target and returns the raw response.
// The caller is responsible for closing the response body.
func (c *UpstreamClient) Do(req *http.Request) (*http.Response, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return resp, nil
}

// DoStream executes a request and returns the response with its body unread.
// The caller is responsible for closing the body. The context controls the
// whole exchange, including reads from the body: when it is canceled (client
// disconnect or timeout) the upstream connection is torn down.
//
// body may be nil. When it is not, contentLength is sent as the request's
// Content-Length (-1 for unknown).
func (c *UpstreamClient) DoStream(ctx context.Context, method, url string, header http.Header, body io.Reader, contentLength int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header
	if body != nil {
		req.ContentLength = contentLength
	}

	return c.Do(req)
}
