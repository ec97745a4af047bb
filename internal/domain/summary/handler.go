package summary

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/domain/schedule"
	"github.com/clinicq/clinicq/internal/platform/apierror"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/summary", h.Get)
}

// Get answers ?date=&poly_id=&schedule_id=.
func (h *Handler) Get(c echo.Context) error {
	polyID, err := apierror.QueryInt(c, "poly_id")
	if err != nil {
		return err
	}
	scheduleID, err := apierror.QueryInt(c, "schedule_id")
	if err != nil {
		return err
	}
	out, err := h.svc.Summary(c.Request().Context(), c.QueryParam("date"), polyID, scheduleID)
	if err != nil {
		if errors.Is(err, schedule.ErrNotFound) {
			return apierror.NotFound(err.Error())
		}
		return apierror.Internal(err)
	}
	return c.JSON(http.StatusOK, out)
}
