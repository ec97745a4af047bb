package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/platform/apierror"
	"github.com/clinicq/clinicq/internal/platform/auth"
)

// Recovery turns a handler panic into a 500 INTERNAL error. The panic value
// is logged with its stack but never echoed to the client.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				buf := make([]byte, 8<<10)
				buf = buf[:runtime.Stack(buf, false)]

				ev := logger.Error().
					Str("request_id", c.Response().Header().Get(RequestIDHeader)).
					Str("method", c.Request().Method).
					Str("path", c.Request().URL.Path).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", buf)
				if sess, serr := auth.SessionFromContext(c.Request().Context()); serr == nil {
					ev = ev.Str("user_id", sess.UserID)
				}
				ev.Msg("panic recovered")

				err = apierror.New(http.StatusInternalServerError, apierror.CodeInternal, "internal server error")
			}()
			return next(c)
		}
	}
}
