package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"

	"simple-web-proxy/internal/model"
	"simple-web-proxy/internal/service"
	"simple-web-proxy/internal/target"
	"simple-web-proxy/internal/ui"
)

// queryPattern matches the query part of URLs embedded in error messages.
var queryPattern = regexp.MustCompile(`(https?://[^\s"?]*)\?[^\s"]*`)

// ProxyHandler serves every request that is not one of the proxy's own pages.
type ProxyHandler struct {
	service *service.ProxyService
	pages   *ui.Pages
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, pages *ui.Pages, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		pages:   pages,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle resolves the target named by the request path and either renders
// the browser chrome around it or forwards the request and relays the answer.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	mode, raw := Dispatch(rawTarget(req), req.Header.Get(echo.HeaderAccept))
	u, err := target.Resolve(raw)
	if err != nil {
		return h.mapError(c, raw, err)
	}

	if mode == model.ModeWrapped {
		return h.chrome(c, u)
	}

	tr := &model.TargetRequest{
		URL:           u,
		Mode:          mode,
		Method:        req.Method,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Forward(req.Context(), tr)
	if err != nil {
		return h.mapError(c, u.String(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	header := c.Response().Header()
	for key, vals := range resp.Header {
		header[key] = vals
	}
	c.Response().WriteHeader(resp.StatusCode)

	if req.Method == http.MethodHead {
		return nil
	}

	// Once the status is sent a failure can only truncate the response.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		if errors.Is(err, service.ErrUpstreamTimeout) {
			h.logger.Warn("response truncated by timeout",
				"host", u.Host,
				"mode", mode.String(),
			)
			return nil
		}
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"host", u.Host,
		)
	}

	return nil
}

func (h *ProxyHandler) chrome(c echo.Context, u *url.URL) error {
	page, err := h.pages.Chrome(u.String())
	if err != nil {
		return err
	}

	header := c.Response().Header()
	header.Set(echo.HeaderCacheControl, "no-store, no-cache, must-revalidate")
	header.Set("Pragma", "no-cache")
	header.Set("Expires", "0")
	return c.Blob(http.StatusOK, ui.ContentTypeHTML, page)
}

func (h *ProxyHandler) mapError(c echo.Context, tgt string, err error) error {
	if errors.Is(err, target.ErrInvalidTarget) {
		h.logger.Debug("invalid target", "err", sanitizeError(err))
		return c.String(http.StatusBadRequest, "Invalid URL")
	}

	if errors.Is(err, context.Canceled) {
		h.logger.Debug("client disconnected", "target", redactQuery(tgt))
		return c.String(http.StatusBadGateway, "client disconnected")
	}

	h.logger.Error("proxy error",
		"err", sanitizeError(err),
		"target", redactQuery(tgt),
	)

	switch {
	case errors.Is(err, service.ErrContentTooLarge):
		return h.errorPage(c, ui.TooLarge())
	case errors.Is(err, service.ErrUpstreamTimeout):
		return h.errorPage(c, ui.Timeout(tgt))
	case errors.Is(err, service.ErrTargetDenied):
		host := tgt
		if u, perr := url.Parse(tgt); perr == nil && u.Host != "" {
			host = u.Host
		}
		return h.errorPage(c, ui.Denied(host))
	}

	var ue *service.UpstreamError
	if errors.As(err, &ue) {
		return h.errorPage(c, ui.ConnectionFailed(sanitizeError(ue.Err)))
	}
	return h.errorPage(c, ui.ConnectionFailed(sanitizeError(err)))
}

func (h *ProxyHandler) errorPage(c echo.Context, p ui.ErrorPage) error {
	body, err := h.pages.Error(p)
	if err != nil {
		return err
	}
	return c.Blob(p.Status, ui.ContentTypeHTML, body)
}

// sanitizeError redacts query strings from URLs embedded in error messages.
func sanitizeError(err error) string {
	return redactQuery(err.Error())
}

func redactQuery(s string) string {
	return queryPattern.ReplaceAllString(s, "${1}?[REDACTED]")
}
