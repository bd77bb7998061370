package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Register mounts every route on e.
func Register(e *echo.Echo, d *Deps) {
	h := newHandler(d)

	e.GET("/health", func(c echo.Context) error {
		return respond(c, http.StatusOK, echo.Map{"status": "ok"}, "OK")
	})

	users := e.Group("/api/v1/users")

	users.POST("/register", h.Register)
	users.POST("/login", h.Login)
	users.POST("/refresh-token", h.RefreshToken)
	users.GET("/c/:username", h.ChannelProfile, h.OptionalAuth)

	// Auth is attached per route so unknown paths under the prefix stay 404.
	auth := h.RequireAuth

	users.POST("/logout", h.Logout, auth)
	users.POST("/change-password", h.ChangePassword, auth)
	users.PATCH("/change-password", h.ChangePassword, auth)
	users.GET("/current-user", h.CurrentUser, auth)
	users.PATCH("/update-account-details", h.UpdateAccountDetails, auth)
	users.PATCH("/update-avatar", h.UpdateAvatar, auth)
	users.PATCH("/update-cover", h.UpdateCover, auth)
	users.POST("/c/:username/subscription", h.Subscribe, auth)
	users.DELETE("/c/:username/subscription", h.Unsubscribe, auth)
	users.GET("/watch-history", h.WatchHistory, auth)
	users.POST("/watch-history/:videoId", h.RecordWatch, auth)
}
