package httpserver

import (
	"net/http"
	"time"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/server/models"
	"github.com/labstack/echo/v4"
)

func createCookie(name, value, path string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func deleteCookie(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func setTokenCookies(c echo.Context, pair *models.TokenPair) {
	c.SetCookie(createCookie(common.AccessTokenCookieName, pair.AccessToken, "/", pair.AccessExpiresAt))
	c.SetCookie(createCookie(common.RefreshTokenCookieName, pair.RefreshToken, "/", pair.RefreshExpiresAt))
}

func clearTokenCookies(c echo.Context) {
	c.SetCookie(deleteCookie(common.AccessTokenCookieName, "/"))
	c.SetCookie(deleteCookie(common.RefreshTokenCookieName, "/"))
}

func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
