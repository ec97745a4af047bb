package schedule

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/platform/apierror"
	"github.com/clinicq/clinicq/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/polies", h.ListPolies)
	api.GET("/doctors", h.ListDoctors)
	api.GET("/schedules", h.ListSchedules)
	api.GET("/schedules/:id", h.GetSchedule)
	api.GET("/schedules/:id/quota", h.GetQuota)

	api.POST("/schedules", h.CreateSchedule, auth.RequireRole(auth.RoleAdmin))
}

func toAPIError(err error) error {
	var ve validator.ValidationErrors
	switch {
	case errors.Is(err, ErrNotFound):
		return apierror.NotFound(err.Error())
	case errors.Is(err, ErrInvalid):
		return apierror.BadRequest(err.Error())
	case errors.As(err, &ve):
		return apierror.Validation(err)
	default:
		return apierror.Internal(err)
	}
}

func (h *Handler) ListPolies(c echo.Context) error {
	items, err := h.svc.ListPolies(c.Request().Context())
	if err != nil {
		return toAPIError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	polyID, err := apierror.QueryInt(c, "poly_id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListDoctors(c.Request().Context(), polyID)
	if err != nil {
		return toAPIError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// ListSchedules answers ?doctor_id=&poly_id=&month=&year=&date=. With
// group=doctor the result is grouped per doctor for a picker.
func (h *Handler) ListSchedules(c echo.Context) error {
	var f Filter
	var err error
	if f.DoctorID, err = apierror.QueryInt(c, "doctor_id"); err != nil {
		return err
	}
	if f.PolyID, err = apierror.QueryInt(c, "poly_id"); err != nil {
		return err
	}
	month, err := apierror.QueryInt(c, "month")
	if err != nil {
		return err
	}
	year, err := apierror.QueryInt(c, "year")
	if err != nil {
		return err
	}
	f.Month, f.Year = int(month), int(year)
	f.Date = c.QueryParam("date")

	items, err := h.svc.ListSchedules(c.Request().Context(), f)
	if err != nil {
		return toAPIError(err)
	}
	if c.QueryParam("group") == "doctor" {
		return c.JSON(http.StatusOK, GroupByDoctor(items))
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetSchedule(c echo.Context) error {
	id, err := apierror.PathID(c, "id")
	if err != nil {
		return err
	}
	sched, err := h.svc.GetSchedule(c.Request().Context(), id)
	if err != nil {
		return toAPIError(err)
	}
	return c.JSON(http.StatusOK, sched)
}

func (h *Handler) CreateSchedule(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	sched, err := h.svc.CreateSchedule(c.Request().Context(), req)
	if err != nil {
		return toAPIError(err)
	}
	return c.JSON(http.StatusCreated, sched)
}

func (h *Handler) GetQuota(c echo.Context) error {
	id, err := apierror.PathID(c, "id")
	if err != nil {
		return err
	}
	info, err := h.svc.Quota(c.Request().Context(), id)
	if err != nil {
		return toAPIError(err)
	}
	return c.JSON(http.StatusOK, info)
}
