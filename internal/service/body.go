package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// errUnsupportedEncoding marks a Content-Encoding the proxy cannot decode.
var errUnsupportedEncoding = errors.New("unsupported content encoding")

// readLimited reads r to EOF. A non-negative limit caps the result; reading
// more than limit bytes fails with ErrContentTooLarge.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit < 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrContentTooLarge, limit)
	}
	return b, nil
}

// decodeBody undoes a single Content-Encoding. The decoded size is capped by
// limit as in readLimited.
func decodeBody(raw []byte, encoding string, limit int64) ([]byte, error) {
	src := bytes.NewReader(raw)

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return readLimited(zr, limit)
	case "deflate":
		// Servers disagree on whether deflate carries a zlib wrapper.
		zr, err := zlib.NewReader(src)
		if err != nil {
			fr := flate.NewReader(bytes.NewReader(raw))
			defer fr.Close()
			return readLimited(fr, limit)
		}
		defer zr.Close()
		return readLimited(zr, limit)
	case "br":
		return readLimited(brotli.NewReader(src), limit)
	case "zstd":
		zr, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		return readLimited(zr, limit)
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedEncoding, encoding)
	}
}

// streamBody hands a live upstream body to the caller. Closing it releases
// the exchange's timer; a read failing because that timer fired reports
// ErrUpstreamTimeout.
type streamBody struct {
	io.Reader
	body      io.Closer
	ctx       context.Context
	cancel    context.CancelFunc
	onTimeout func()
}

func (s *streamBody) Read(p []byte) (int, error) {
	n, err := s.Reader.Read(p)
	if err != nil && err != io.EOF && errors.Is(context.Cause(s.ctx), ErrUpstreamTimeout) {
		if s.onTimeout != nil {
			s.onTimeout()
			s.onTimeout = nil
		}
		return n, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return n, err
}

func (s *streamBody) Close() error {
	err := s.body.Close()
	s.cancel()
	return err
}
