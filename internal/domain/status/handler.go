package status

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	catalog *Catalog
}

func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/statuses", h.List)
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog.Ordered())
}
