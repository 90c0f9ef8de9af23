package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"simple-web-proxy/internal/ui"
)

// StaticHandler serves the homepage and its assets.
type StaticHandler struct {
	pages *ui.Pages
}

// NewStaticHandler creates a StaticHandler.
func NewStaticHandler(pages *ui.Pages) *StaticHandler {
	return &StaticHandler{pages: pages}
}

// Home serves the homepage. It also answers /favicon.ico.
func (h *StaticHandler) Home(c echo.Context) error {
	return c.Blob(http.StatusOK, ui.ContentTypeHTML, h.pages.Home())
}

// Styles serves the shared stylesheet.
func (h *StaticHandler) Styles(c echo.Context) error {
	return c.Blob(http.StatusOK, ui.ContentTypeCSS, h.pages.Styles())
}

// Script serves the client script.
func (h *StaticHandler) Script(c echo.Context) error {
	return c.Blob(http.StatusOK, ui.ContentTypeJS, h.pages.Script())
}
