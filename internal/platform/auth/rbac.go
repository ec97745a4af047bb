package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks the session holds at least one
// of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, err := SessionFromContext(c.Request().Context())
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			if err := sess.Require(roles...); err != nil {
				return HTTPError(err)
			}
			return next(c)
		}
	}
}

// HTTPError maps session errors onto echo errors. It returns nil for nil.
func HTTPError(err error) *echo.HTTPError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoSession):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
