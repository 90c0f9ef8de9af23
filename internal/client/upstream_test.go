package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"simple-web-proxy/internal/config"
	"simple-web-proxy/internal/metrics"
)

func newTestClient(t *testing.T, blockPrivate bool, m *metrics.Metrics) *UpstreamClient {
	t.Helper()
	cfg := &config.Config{
		Proxy: config.ProxyConfig{
			IdleConnections:      10,
			BlockPrivateNetworks: blockPrivate,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUpstreamClient(cfg, logger, m)
}

func TestUpstreamClient_DoStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := newTestClient(t, false, nil)

	resp, err := c.DoStream(context.Background(), http.MethodGet, srv.URL+"/test", http.Header{}, nil, 0)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q, want %q", string(body), "hello")
	}
}

func TestUpstreamClient_DoStream_RelaysBody(t *testing.T) {
	var gotBody string
	var gotLength int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotLength = r.ContentLength
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, false, nil)
	payload := "q=search+terms"

	resp, err := c.DoStream(context.Background(), http.MethodPost, srv.URL, http.Header{}, strings.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	_ = resp.Body.Close()

	if gotBody != payload {
		t.Errorf("upstream body = %q, want %q", gotBody, payload)
	}
	if gotLength != int64(len(payload)) {
		t.Errorf("upstream Content-Length = %d, want %d", gotLength, len(payload))
	}
}

func TestUpstreamClient_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/final" {
			t.Error("redirect was followed")
		}
		http.Redirect(w, r, "/final", http.StatusFound)
	}))
	defer srv.Close()

	c := newTestClient(t, false, nil)

	resp, err := c.DoStream(context.Background(), http.MethodGet, srv.URL+"/start", http.Header{}, nil, 0)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/final" {
		t.Errorf("Location = %q, want %q", loc, "/final")
	}
}

func TestUpstreamClient_NoImplicitCompression(t *testing.T) {
	var gotEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Accept-Encoding")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, false, nil)

	resp, err := c.DoStream(context.Background(), http.MethodGet, srv.URL, http.Header{}, nil, 0)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	_ = resp.Body.Close()

	if gotEncoding != "" {
		t.Errorf("Accept-Encoding = %q, want none", gotEncoding)
	}
}

func TestUpstreamClient_DoStream_Error(t *testing.T) {
	c := newTestClient(t, false, nil)

	_, err := c.DoStream(context.Background(), http.MethodGet, "http://127.0.0.1:1/nonexistent", http.Header{}, nil, 0)
	if err == nil {
		t.Fatal("DoStream() expected error for unreachable host, got nil")
	}
}

func TestUpstreamClient_DoStream_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Simulate a slow upstream; the request should be canceled before this completes.
		time.Sleep(5 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, false, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := c.DoStream(ctx, http.MethodGet, srv.URL+"/slow", http.Header{}, nil, 0)
	if err == nil {
		t.Fatal("DoStream() expected error for canceled context, got nil")
	}
}

func TestUpstreamClient_BlockPrivateNetworks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached a loopback server")
	}))
	defer srv.Close()

	c := newTestClient(t, true, nil)

	_, err := c.DoStream(context.Background(), http.MethodGet, srv.URL, http.Header{}, nil, 0)
	if !errors.Is(err, ErrBlockedAddress) {
		t.Fatalf("DoStream() error = %v, want ErrBlockedAddress", err)
	}
}

func TestUpstreamClient_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	m := metrics.New()
	c := newTestClient(t, false, m)

	resp, err := c.DoStream(context.Background(), http.MethodGet, srv.URL, http.Header{}, nil, 0)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	_ = resp.Body.Close()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "simple_web_proxy_upstream_responses_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "status_code" && lp.GetValue() == "418" {
					return
				}
			}
		}
	}
	t.Error("expected simple_web_proxy_upstream_responses_total with status_code=418")
}

func TestSafeDialer_IsBlocked(t *testing.T) {
	d := newSafeDialer(&net.Dialer{})

	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"fd00::1", true},
		{"fe80::1", true},
		{"::ffff:127.0.0.1", true},
		{"93.184.216.34", false},
		{"8.8.8.8", false},
		{"2606:4700::1111", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := d.isBlocked(net.ParseIP(tt.ip)); got != tt.want {
				t.Errorf("isBlocked(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestSafeDialer_BlocksResolvedHost(t *testing.T) {
	d := newSafeDialer(&net.Dialer{Timeout: time.Second})

	_, err := d.DialContext(context.Background(), "tcp", "localhost:80")
	if !errors.Is(err, ErrBlockedAddress) {
		t.Fatalf("DialContext() error = %v, want ErrBlockedAddress", err)
	}
}
