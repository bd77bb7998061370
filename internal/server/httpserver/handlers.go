package httpserver

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/filex"
	"github.com/Cybrite/your-tube/internal/logging"
	"github.com/Cybrite/your-tube/internal/server/services"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	sessions       Sessions
	media          Media
	graph          Graph
	tokens         TokenVerifier
	limiter        LoginLimiter
	uploadDir      string
	maxUploadBytes int64
	logger         logging.Logger
}

func newHandler(d *Deps) *Handler {
	return &Handler{
		sessions:       d.Sessions,
		media:          d.Media,
		graph:          d.Graph,
		tokens:         d.Tokens,
		limiter:        d.Limiter,
		uploadDir:      d.UploadDir,
		maxUploadBytes: d.MaxUploadBytes,
		logger:         d.Logger,
	}
}

func (h *Handler) log(c echo.Context) logging.Logger {
	return logging.FromContext(c.Request().Context(), h.logger)
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" form:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword     string `json:"oldPassword" form:"oldPassword"`
	NewPassword     string `json:"newPassword" form:"newPassword"`
	ConfirmPassword string `json:"confirmPassword" form:"confirmPassword"`
}

type accountDetailsRequest struct {
	FullName string `json:"fullName" form:"fullName"`
	Email    string `json:"email" form:"email"`
}

func (h *Handler) Register(c echo.Context) error {
	ctx := c.Request().Context()

	avatar, err := h.stage(c, "avatar")
	if err != nil {
		return err
	}
	defer filex.Discard(avatar)

	cover, err := h.stage(c, "coverImage")
	if err != nil {
		return err
	}
	defer filex.Discard(cover)

	account, err := h.sessions.Register(ctx, services.RegisterInput{
		FullName:   c.FormValue("fullName"),
		Email:      c.FormValue("email"),
		Username:   c.FormValue("username"),
		Password:   c.FormValue("password"),
		AvatarPath: avatar,
		CoverPath:  cover,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusCreated, account, "User registered successfully")
}

func (h *Handler) Login(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.throttleLogin(c); err != nil {
		return err
	}

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	res, err := h.sessions.Login(ctx, services.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	setTokenCookies(c, &res.Tokens)
	return respond(c, http.StatusOK, echo.Map{
		"user":         res.Account,
		"accessToken":  res.Tokens.AccessToken,
		"refreshToken": res.Tokens.RefreshToken,
	}, "User logged in successfully")
}

// throttleLogin counts the attempt against the client address. A limiter
// that cannot reach its store lets the attempt through.
func (h *Handler) throttleLogin(c echo.Context) error {
	if h.limiter == nil {
		return nil
	}
	ctx := c.Request().Context()

	allowed, retryAfter, err := h.limiter.Allow(ctx, c.RealIP())
	if err != nil {
		h.log(c).Warn(ctx, "login rate limiter unavailable", "error", err)
		return nil
	}
	if allowed {
		return nil
	}

	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	return common.Errorf(common.ErrorRateLimited, "too many login attempts, retry later")
}

func (h *Handler) Logout(c echo.Context) error {
	if err := h.sessions.Logout(c.Request().Context(), accountID(c)); err != nil {
		return err
	}

	clearTokenCookies(c)
	return respond(c, http.StatusOK, echo.Map{}, "User logged out")
}

// RefreshToken rotates the refresh token taken from the cookie or the JSON
// body. Only a request that also carries an access token signed for another
// account is refused as a mismatch; without an access token the refresh
// token alone is enough.
func (h *Handler) RefreshToken(c echo.Context) error {
	ctx := c.Request().Context()

	presented := cookieValue(c, common.RefreshTokenCookieName)
	if presented == "" {
		var req refreshRequest
		if err := c.Bind(&req); err != nil {
			return err
		}
		presented = req.RefreshToken
	}

	// A correctly signed access token, even an expired one, binds the
	// refresh to its account.
	var bound string
	if token := accessToken(c); token != "" {
		if sub, err := h.tokens.AccessTokenSubject(token); err == nil {
			bound = sub
		}
	}

	pair, err := h.sessions.Refresh(ctx, presented, bound)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			clearTokenCookies(c)
		}
		return err
	}

	setTokenCookies(c, pair)
	return respond(c, http.StatusOK, echo.Map{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "Access token refreshed")
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	err := h.sessions.ChangePassword(c.Request().Context(), accountID(c), services.ChangePasswordInput{
		OldPassword:     req.OldPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, echo.Map{}, "Password changed successfully")
}

func (h *Handler) CurrentUser(c echo.Context) error {
	account, err := h.sessions.CurrentAccount(c.Request().Context(), accountID(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, account, "User fetched successfully")
}

func (h *Handler) UpdateAccountDetails(c echo.Context) error {
	var req accountDetailsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	account, err := h.sessions.UpdateAccountDetails(c.Request().Context(), accountID(c), req.FullName, req.Email)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, account, "Account details updated successfully")
}

func (h *Handler) UpdateAvatar(c echo.Context) error {
	path, err := h.stage(c, "avatar")
	if err != nil {
		return err
	}
	defer filex.Discard(path)

	account, err := h.media.UpdateAvatar(c.Request().Context(), accountID(c), path)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, account, "Avatar updated successfully")
}

func (h *Handler) UpdateCover(c echo.Context) error {
	path, err := h.stage(c, "coverImage")
	if err != nil {
		return err
	}
	defer filex.Discard(path)

	account, err := h.media.UpdateCover(c.Request().Context(), accountID(c), path)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, account, "Cover image updated successfully")
}

func (h *Handler) ChannelProfile(c echo.Context) error {
	profile, err := h.graph.ChannelProfile(c.Request().Context(), accountID(c), c.Param("username"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, profile, "User channel fetched successfully")
}

func (h *Handler) Subscribe(c echo.Context) error {
	if err := h.graph.Subscribe(c.Request().Context(), accountID(c), c.Param("username")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"subscribed": true}, "Subscribed successfully")
}

func (h *Handler) Unsubscribe(c echo.Context) error {
	if err := h.graph.Unsubscribe(c.Request().Context(), accountID(c), c.Param("username")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"subscribed": false}, "Unsubscribed successfully")
}

func (h *Handler) WatchHistory(c echo.Context) error {
	history, err := h.graph.WatchHistory(c.Request().Context(), accountID(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, history, "Watch history fetched successfully")
}

func (h *Handler) RecordWatch(c echo.Context) error {
	if err := h.graph.RecordWatch(c.Request().Context(), accountID(c), c.Param("videoId")); err != nil {
		return err
	}
	return respond(c, http.StatusCreated, echo.Map{}, "Watch recorded")
}

// stage copies the multipart file field into the upload directory and
// returns its path, or "" when the field is absent.
func (h *Handler) stage(c echo.Context, field string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", common.Errorf(common.ErrorValidation, "%s must be sent as a multipart file", field)
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		return "", common.Errorf(common.ErrorValidation, "%s exceeds the %d byte upload limit", field, h.maxUploadBytes)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open %s upload: %w: %w", field, common.ErrorInternal, err)
	}
	defer src.Close()

	path, err := filex.Stage(h.uploadDir, fh.Filename, src)
	if err != nil {
		return "", fmt.Errorf("stage %s upload: %w: %w", field, common.ErrorInternal, err)
	}
	return path, nil
}
