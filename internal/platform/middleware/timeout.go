package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/platform/apierror"
)

// RequestTimeout puts a deadline on each request's context. Websocket
// upgrades are long-lived and skipped. Handlers that detach their context
// for writes still finish those writes after the deadline.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.HasSuffix(c.Request().URL.Path, "/ws") {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if ctx.Err() == context.DeadlineExceeded && (err != nil || !c.Response().Committed) {
				return apierror.New(http.StatusGatewayTimeout, "TIMEOUT", "request exceeded the allowed time")
			}
			return err
		}
	}
}
