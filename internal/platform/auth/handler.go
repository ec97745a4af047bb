package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Handler serves the session endpoints. Login itself belongs to the
// identity provider that issues tokens.
type Handler struct {
	store *TokenRevocationStore
}

func NewHandler(store *TokenRevocationStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/auth/session", h.Current)
	api.POST("/auth/logout", h.Logout)
}

func (h *Handler) Current(c echo.Context) error {
	sess, err := SessionFromContext(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

// Logout revokes the token the request was made with and ends the session.
func (h *Handler) Logout(c echo.Context) error {
	sess, err := SessionFromContext(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	if h.store != nil && sess.TokenID != "" {
		exp := sess.ExpiresAt
		if exp.IsZero() {
			exp = time.Now().Add(24 * time.Hour)
		}
		h.store.Revoke(sess.TokenID, sess.UserID, exp)
	}
	sess.Logout()
	return c.NoContent(http.StatusNoContent)
}
