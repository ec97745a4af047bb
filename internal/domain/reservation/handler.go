package reservation

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/domain/schedule"
	"github.com/clinicq/clinicq/internal/domain/status"
	"github.com/clinicq/clinicq/internal/platform/apierror"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/pkg/pagination"
)

type Handler struct {
	svc     *Service
	catalog *status.Catalog
}

func NewHandler(svc *Service, catalog *status.Catalog) *Handler {
	return &Handler{svc: svc, catalog: catalog}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reservations", h.List)
	api.GET("/reservations/:id", h.Get)
	api.POST("/reservations", h.Register)
	api.POST("/reservations/:id/:action", h.Transition)
	api.POST("/polies/:id/call-next", h.CallNext)
	api.GET("/queue-status", h.QueueStatus)
}

// toAPIError maps service errors onto response bodies. Conflicts carry the
// reservation's actual status so a station can re-render.
func toAPIError(err error) error {
	var te *TransitionError
	var qe *schedule.QuotaError
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &te):
		return &apierror.Error{
			Status:        http.StatusConflict,
			Code:          apierror.CodeInvalidTransition,
			Message:       te.Error(),
			CurrentStatus: string(te.Current),
		}
	case errors.As(err, &qe):
		return apierror.New(http.StatusConflict, schedule.CodeQuotaExceeded, qe.Error())
	case errors.Is(err, ErrMissingOperationalData):
		return apierror.New(http.StatusUnprocessableEntity, apierror.CodeMissingQueue, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, schedule.ErrNotFound), errors.Is(err, ErrNoneWaiting):
		return apierror.NotFound(err.Error())
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrUnknownAction):
		return apierror.BadRequest(err.Error())
	case errors.As(err, &ve):
		return apierror.Validation(err)
	case errors.Is(err, auth.ErrNoSession), errors.Is(err, auth.ErrForbidden):
		return auth.HTTPError(err)
	default:
		return apierror.Internal(err)
	}
}

// List answers ?date=&poly_id=&status=&limit=&offset=. date defaults to
// today; status takes a status name.
func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	f := ListFilter{Date: c.QueryParam("date"), Limit: p.Limit, Offset: p.Offset}
	if f.Date == "" {
		f.Date = h.svc.Today()
	}
	var err error
	if f.PolyID, err = apierror.QueryInt(c, "poly_id"); err != nil {
		return err
	}
	if name := c.QueryParam("status"); name != "" {
		if f.StatusID, err = h.catalog.Resolve(status.Name(name)); err != nil {
			return apierror.BadRequest(err.Error())
		}
	}

	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return toAPIError(err)
	}
	if items == nil {
		items = []*Reservation{}
	}
	resp := pagination.NewResponse(items, total, p.Limit, p.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := apierror.PathID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toAPIError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Register(c echo.Context) error {
	sess, err := auth.SessionFromContext(c.Request().Context())
	if err != nil {
		return auth.HTTPError(err)
	}
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	res, err := h.svc.Register(c.Request().Context(), sess, req)
	if err != nil {
		return toAPIError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Transition handles POST /reservations/:id/{anamnesa,waiting-doctor,...}.
func (h *Handler) Transition(c echo.Context) error {
	sess, err := auth.SessionFromContext(c.Request().Context())
	if err != nil {
		return auth.HTTPError(err)
	}
	id, err := apierror.PathID(c, "id")
	if err != nil {
		return err
	}
	action, err := ParseAction(c.Param("action"))
	if err != nil {
		return apierror.NotFound(err.Error())
	}
	result, err := h.svc.Transition(c.Request().Context(), sess, id, action)
	if err != nil {
		return toAPIError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// CallNext handles POST /polies/:id/call-next?station=anamnesa|doctor.
func (h *Handler) CallNext(c echo.Context) error {
	sess, err := auth.SessionFromContext(c.Request().Context())
	if err != nil {
		return auth.HTTPError(err)
	}
	polyID, err := apierror.PathID(c, "id")
	if err != nil {
		return err
	}
	station, err := ParseStation(c.QueryParam("station"))
	if err != nil {
		return apierror.BadRequest(err.Error())
	}
	result, err := h.svc.CallNext(c.Request().Context(), sess, polyID, station)
	if err != nil {
		return toAPIError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// QueueStatus returns the snapshot the realtime topic would carry now.
func (h *Handler) QueueStatus(c echo.Context) error {
	snap, err := h.svc.Snapshot(c.Request().Context())
	if err != nil {
		return toAPIError(err)
	}
	return c.JSON(http.StatusOK, snap)
}
