package download

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for download operations.
type Handlers struct {
	pool *Pool
}

// NewHandlers creates new download handlers.
func NewHandlers(pool *Pool) *Handlers {
	return &Handlers{pool: pool}
}

// RegisterRoutes registers the download routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.ListDownloads)
	g.POST("", h.StartDownload)
	g.DELETE("/completed", h.DismissAll)
	g.DELETE("/completed/:id", h.Dismiss)
	g.DELETE("/:id", h.CancelDownload)
}

type startRequest struct {
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	Replacing bool   `json:"replacing"`
}

// ListDownloads returns the active and completed sets.
// GET /api/v1/downloads
func (h *Handlers) ListDownloads(c echo.Context) error {
	return c.JSON(http.StatusOK, h.pool.View())
}

// StartDownload admits a new download into the pool.
// POST /api/v1/downloads
func (h *Handlers) StartDownload(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.URL == "" || req.Filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url and filename are required")
	}

	item, err := h.pool.Start(c.Request().Context(), req.URL, req.Filename, req.Replacing)
	if err != nil {
		switch {
		case errors.Is(err, ErrLimitReached):
			return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
		case errors.Is(err, ErrDuplicateFilename), errors.Is(err, ErrFileExists):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusAccepted, item.View())
}

// CancelDownload aborts an active download.
// DELETE /api/v1/downloads/:id
func (h *Handlers) CancelDownload(c echo.Context) error {
	if err := h.pool.Cancel(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// Dismiss removes one completed download from the list.
// DELETE /api/v1/downloads/completed/:id
func (h *Handlers) Dismiss(c echo.Context) error {
	if err := h.pool.Dismiss(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// DismissAll clears the completed list.
// DELETE /api/v1/downloads/completed
func (h *Handlers) DismissAll(c echo.Context) error {
	h.pool.DismissAll()
	return c.NoContent(http.StatusNoContent)
}
