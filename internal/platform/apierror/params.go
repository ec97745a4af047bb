package apierror

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// PathID reads a positive integer path parameter.
func PathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, BadRequest("invalid " + name)
	}
	return id, nil
}

// QueryInt reads an optional non-negative integer query parameter. Absent
// means zero.
func QueryInt(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, BadRequest("invalid " + name)
	}
	return v, nil
}
