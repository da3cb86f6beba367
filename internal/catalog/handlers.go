package catalog

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// ProductView is the wire representation of one installer product.
type ProductView struct {
	Key            string    `json:"key"`
	Title          string    `json:"title"`
	ProductVersion string    `json:"productVersion"`
	BuildVersion   string    `json:"buildVersion"`
	OSName         string    `json:"osName"`
	PostDate       time.Time `json:"postDate"`
	InstallerURL   string    `json:"installerUrl"`
	InstallerSize  int64     `json:"installerSize"`
	Filename       string    `json:"filename"`
}

// productViews snapshots the published list as wire views.
func (s *Service) productViews() []ProductView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]ProductView, 0, len(s.installers))
	for _, p := range s.installers {
		views = append(views, ProductView{
			Key:            p.Key,
			Title:          p.Title,
			ProductVersion: p.ProductVersion,
			BuildVersion:   p.BuildVersion,
			OSName:         p.OSName,
			PostDate:       p.PostDate,
			InstallerURL:   p.InstallerURL(),
			InstallerSize:  p.InstallerSize(),
			Filename:       p.Filename(),
		})
	}
	return views
}

// Handlers provides HTTP handlers for catalog operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates new catalog handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the catalog routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/products", h.ListProducts)
	g.GET("/status", h.GetStatus)
	g.POST("/reload", h.Reload)
}

// ListProducts returns the published installer list.
// GET /api/v1/catalog/products
func (h *Handlers) ListProducts(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.productViews())
}

// GetStatus returns the loading state.
// GET /api/v1/catalog/status
func (h *Handlers) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"loading":   h.service.IsLoading(),
		"hasLoaded": h.service.HasLoaded(),
	})
}

// Reload starts a full catalog reload.
// POST /api/v1/catalog/reload
func (h *Handlers) Reload(c echo.Context) error {
	if err := h.service.Load(c.Request().Context()); err != nil {
		if errors.Is(err, ErrLoadInProgress) {
			return echo.NewHTTPError(http.StatusConflict, "catalog load already in progress")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "loading"})
}
