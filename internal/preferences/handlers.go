package preferences

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for preference operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates new preference handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the preference routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetPreferences)
	g.PUT("", h.SetPreferences)
}

// GetPreferences returns the current preferences.
// GET /api/v1/preferences
func (h *Handlers) GetPreferences(c echo.Context) error {
	prefs, err := h.service.Get(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, prefs)
}

// SetPreferences updates the preferences.
// PUT /api/v1/preferences
func (h *Handlers) SetPreferences(c echo.Context) error {
	var prefs Preferences
	if err := c.Bind(&prefs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.service.Set(c.Request().Context(), prefs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := h.service.Get(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}
