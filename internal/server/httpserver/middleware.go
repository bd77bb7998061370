package httpserver

import (
	"strings"
	"time"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/logging"
	"github.com/labstack/echo/v4"
)

// RequestLogger attaches a request-scoped logger to the request context and
// logs one line per request once the response status is known.
func RequestLogger(base logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = c.Response().Header().Get(echo.HeaderXRequestID)
			}

			l := base.With(
				"method", req.Method,
				"path", c.Path(),
				"remote_ip", c.RealIP(),
			)
			if rid != "" {
				l = l.With("request_id", rid)
			}

			ctx := logging.IntoContext(req.Context(), l)
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			dur := time.Since(start)
			status := c.Response().Status

			switch {
			case status >= 500:
				l.Error(ctx, "request completed", "status", status, "duration_ms", dur.Milliseconds())
			case status >= 400:
				l.Warn(ctx, "request completed", "status", status, "duration_ms", dur.Milliseconds())
			default:
				l.Info(ctx, "request completed", "status", status, "duration_ms", dur.Milliseconds(), "bytes", c.Response().Size)
			}
			return nil
		}
	}
}

// accessToken reads the access token from its cookie, falling back to an
// Authorization bearer header.
func accessToken(c echo.Context) string {
	if v := cookieValue(c, common.AccessTokenCookieName); v != "" {
		return v
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// RequireAuth rejects requests without a valid access token.
func (h *Handler) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := accessToken(c)
		if token == "" {
			return common.ErrInvalidToken
		}
		id, err := h.tokens.VerifyAccessToken(token)
		if err != nil {
			return err
		}
		c.Set(common.AccountIDContextKey, id)
		return next(c)
	}
}

// OptionalAuth identifies the caller when a valid access token is present
// and lets anonymous requests through otherwise.
func (h *Handler) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if token := accessToken(c); token != "" {
			if id, err := h.tokens.VerifyAccessToken(token); err == nil {
				c.Set(common.AccountIDContextKey, id)
			}
		}
		return next(c)
	}
}

func accountID(c echo.Context) string {
	id, _ := c.Get(common.AccountIDContextKey).(string)
	return id
}
