package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"simple-web-proxy/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusResponse struct {
	Status         string        `json:"status"`
	Version        string        `json:"version"`
	Privacy        privacyStatus `json:"privacy"`
	RewriteURLs    bool          `json:"rewrite_urls"`
	RemoveScripts  bool          `json:"remove_scripts"`
	TimeoutMillis  int           `json:"timeout_ms"`
	MaxContentSize int64         `json:"max_content_size"`
}

type privacyStatus struct {
	RemoveTracking              bool `json:"remove_tracking"`
	RemoveFrameOptions          bool `json:"remove_frame_options"`
	RemoveContentSecurityPolicy bool `json:"remove_content_security_policy"`
	DoNotTrack                  bool `json:"do_not_track"`
	ClearCookies                bool `json:"clear_cookies"`
	BlockPrivateNetworks        bool `json:"block_private_networks"`
	DenyHosts                   int  `json:"deny_hosts"`
}

// Status returns the version and the effective privacy settings.
func (h *HealthHandler) Status(c echo.Context) error {
	p, a := h.cfg.Proxy, h.cfg.Advanced
	return c.JSON(http.StatusOK, statusResponse{
		Status:  "ok",
		Version: string(h.version),
		Privacy: privacyStatus{
			RemoveTracking:              p.RemoveTracking,
			RemoveFrameOptions:          p.RemoveFrameOptions,
			RemoveContentSecurityPolicy: p.RemoveContentSecurityPolicy,
			DoNotTrack:                  p.DoNotTrack,
			ClearCookies:                p.ClearCookies,
			BlockPrivateNetworks:        p.BlockPrivateNetworks,
			DenyHosts:                   len(p.DenyHosts),
		},
		RewriteURLs:    a.RewriteURLs,
		RemoveScripts:  a.RemoveScripts,
		TimeoutMillis:  a.TimeoutMillis,
		MaxContentSize: a.MaxContentSize,
	})
}
