package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// bearerToken reads the Authorization header. Browsers cannot set headers on
// a websocket handshake, so the access_token query parameter is accepted as
// a fallback.
func bearerToken(c echo.Context) (string, *echo.HTTPError) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if tok := c.QueryParam("access_token"); tok != "" {
			return tok, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func authenticate(c echo.Context, cfg JWTConfig, tokenStr string) error {
	claims, err := ParseToken(cfg, tokenStr)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	if cfg.Revocations != nil && cfg.Revocations.IsRevoked(claims.ID) {
		return echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
	}
	sess := Login(claims)
	c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), sess)))
	return nil
}

// JWTMiddleware attaches a Session built from a verified HS256 token.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c.Path()) {
				return next(c)
			}
			tokenStr, herr := bearerToken(c)
			if herr != nil {
				return herr
			}
			if err := authenticate(c, cfg, tokenStr); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// DevAuthMiddleware lets unauthenticated requests through as an admin
// session. Requests that do carry a token are still verified.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, herr := bearerToken(c)
			if herr != nil {
				sess := NewSession("dev-user", RoleAdmin)
				c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), sess)))
				return next(c)
			}
			if err := authenticate(c, cfg, tokenStr); err != nil {
				return err
			}
			return next(c)
		}
	}
}
